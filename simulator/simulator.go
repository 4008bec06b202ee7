package simulator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/dagflow/config"
	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/errors"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/observability"
)

// Hook replaces the simulated behaviour of a single node. A returned error
// or a panic becomes a node_error event.
type Hook func(ctx context.Context, node dag.Node, state *dag.State) error

// Simulator produces an event log for a graph.
type Simulator struct {
	taskDelay    time.Duration
	collectDelay time.Duration
	passRate     float64
	seed         int64
	policy       dag.GatePolicy
	inputs       map[string]any
	gates        map[dag.NodeID]bool
	hooks        map[dag.NodeID]Hook
	sinks        []EventSink
	log          *logger.Logger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithConfig applies every field of cfg verbatim.
func WithConfig(cfg config.SimulatorConfig) Option {
	return func(s *Simulator) {
		s.taskDelay = cfg.TaskDelay
		s.collectDelay = cfg.CollectDelay
		s.passRate = cfg.PassRate
		s.seed = cfg.Seed
	}
}

// WithTaskDelay sets how long each task takes.
func WithTaskDelay(d time.Duration) Option { return func(s *Simulator) { s.taskDelay = d } }

// WithCollectDelay sets how long each collect node waits.
func WithCollectDelay(d time.Duration) Option { return func(s *Simulator) { s.collectDelay = d } }

// WithPassRate sets the probability that a gate passes.
func WithPassRate(rate float64) Option { return func(s *Simulator) { s.passRate = rate } }

// WithSeed fixes the random source. Zero seeds from the clock.
func WithSeed(seed int64) Option { return func(s *Simulator) { s.seed = seed } }

// WithGatePolicy selects the false-gate policy. Default GateSkip.
func WithGatePolicy(p dag.GatePolicy) Option { return func(s *Simulator) { s.policy = p } }

// WithInputs seeds the simulation context.
func WithInputs(values map[string]any) Option { return func(s *Simulator) { s.inputs = values } }

// WithGateOutcome forces the outcome of a gate instead of flipping a coin.
func WithGateOutcome(id dag.NodeID, passed bool) Option {
	return func(s *Simulator) { s.gates[id] = passed }
}

// WithHook overrides the behaviour of node id.
func WithHook(id dag.NodeID, hook Hook) Option {
	return func(s *Simulator) { s.hooks[id] = hook }
}

// FailNode makes node id fail with err.
func FailNode(id dag.NodeID, err error) Option {
	return WithHook(id, func(context.Context, dag.Node, *dag.State) error { return err })
}

// WithSink forwards every event to sink.
func WithSink(sink EventSink) Option { return func(s *Simulator) { s.sinks = append(s.sinks, sink) } }

// WithLogger sets the simulator logger.
func WithLogger(l *logger.Logger) Option { return func(s *Simulator) { s.log = l } }

// New creates a Simulator. Tasks take 500ms, collects 1s and gates pass 70%
// of the time unless configured otherwise.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		taskDelay:    500 * time.Millisecond,
		collectDelay: time.Second,
		passRate:     0.7,
		policy:       dag.GateSkip,
		gates:        make(map[dag.NodeID]bool),
		hooks:        make(map[dag.NodeID]Hook),
		log:          logger.Get("simulator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Simulation is the outcome of a Run.
type Simulation struct {
	RunID     string
	Events    []Event
	Completed []dag.NodeID
	Failed    []dag.NodeID
	Skipped   []dag.NodeID
	// Context is the final snapshot of the simulation state.
	Context map[string]any
}

// IsCompleted reports whether id completed.
func (s *Simulation) IsCompleted(id dag.NodeID) bool {
	for _, c := range s.Completed {
		if c == id {
			return true
		}
	}
	return false
}

// Kinds returns the kind of every event in order.
func (s *Simulation) Kinds() []EventKind {
	kinds := make([]EventKind, len(s.Events))
	for i, e := range s.Events {
		kinds[i] = e.Kind
	}
	return kinds
}

// EventsFor returns the events of a single node.
func (s *Simulation) EventsFor(id dag.NodeID) []Event {
	var out []Event
	for _, e := range s.Events {
		if e.Node == id {
			out = append(out, e)
		}
	}
	return out
}

// run holds the mutable state of one Run.
type run struct {
	*Simulator
	id    string
	sim   *Simulation
	state *dag.State
	rng   *rand.Rand
}

// Run simulates g, which must already be validated. It only fails when ctx
// is cancelled, returning the partial simulation with the error.
func (s *Simulator) Run(ctx context.Context, g *dag.Graph) (*Simulation, error) {
	seed := s.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := &run{
		Simulator: s,
		id:        uuid.NewString(),
		state:     dag.NewStateFrom(s.inputs),
		rng:       rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1)),
	}
	r.sim = &Simulation{RunID: r.id}

	ctx, span := observability.StartSpan(ctx, observability.SpanSimulate)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrGraph, g.Name)
	observability.SetSpanAttribute(ctx, observability.AttrRunID, r.id)

	log := s.log.WithFields(logger.Fields(logger.FieldRunID, r.id, logger.FieldGraph, g.Name))
	log.Info("simulation started")

	idx := g.Index()
	sched := dag.NewScheduler(g, s.policy)
	for batch := 0; !sched.Done(); batch++ {
		if err := ctx.Err(); err != nil {
			return r.abort(ctx, err)
		}
		ids := sched.Next()
		r.emit(ctx, Event{Kind: EventBatchStart, Batch: batch, Nodes: ids})

		outcomes := r.runBatch(ctx, batch, idx, ids)
		for i, id := range ids {
			out := outcomes[i]
			for _, e := range out.events {
				r.emit(ctx, e)
			}
			if out.err != nil {
				r.sim.Failed = append(r.sim.Failed, id)
				log.Warn("node failed", logger.MergeWithError(logger.Fields(logger.FieldNode, string(id)), out.err))
			} else {
				r.sim.Completed = append(r.sim.Completed, id)
			}
			// A failed node releases its successors as if it were a false gate.
			skipped := sched.Resolve(id, out.err == nil && out.passed)
			r.sim.Skipped = append(r.sim.Skipped, skipped...)
		}
		r.emit(ctx, Event{Kind: EventBatchComplete, Batch: batch, Nodes: ids})
	}
	if err := ctx.Err(); err != nil {
		return r.abort(ctx, err)
	}

	r.finish(ctx)
	log.Info("simulation complete", logger.Fields(
		"completed", len(r.sim.Completed),
		"failed", len(r.sim.Failed),
		"skipped", len(r.sim.Skipped),
	))
	return r.sim, nil
}

func (r *run) abort(ctx context.Context, err error) (*Simulation, error) {
	r.finish(ctx)
	observability.SetSpanError(ctx, err)
	r.log.Warn("simulation cancelled", logger.MergeWithError(logger.Fields(logger.FieldRunID, r.id), err))
	return r.sim, err
}

func (r *run) finish(ctx context.Context) {
	r.emit(ctx, Event{Kind: EventSimulationComplete, Batch: -1, Nodes: r.sim.Completed})
	r.sim.Context = r.state.Snapshot()
}

// emit appends e to the log and forwards it to the sinks.
func (r *run) emit(ctx context.Context, e Event) {
	e.Seq = len(r.sim.Events)
	e.RunID = r.id
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	r.sim.Events = append(r.sim.Events, e)
	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, e); err != nil {
			r.log.Warn("event sink failed", logger.MergeWithError(logger.Fields("event", string(e.Kind)), err))
		}
	}
}

type outcome struct {
	events []Event
	passed bool
	err    error
}

func (r *run) runBatch(ctx context.Context, batch int, idx *dag.Index, ids []dag.NodeID) []outcome {
	// Coin flips happen in batch order so a seed reproduces the log.
	flips := make([]bool, len(ids))
	for i, id := range ids {
		node, _ := idx.Node(id)
		if node.Kind() != dag.KindGate {
			continue
		}
		if forced, ok := r.gates[id]; ok {
			flips[i] = forced
			continue
		}
		flips[i] = r.rng.Float64() < r.passRate
	}

	for _, id := range ids {
		node, _ := idx.Node(id)
		r.emit(ctx, Event{Kind: EventNodeStart, Batch: batch, Node: id, NodeKind: node.Kind()})
	}

	outcomes := make([]outcome, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		node, _ := idx.Node(id)
		wg.Add(1)
		go func(i int, node dag.Node) {
			defer wg.Done()
			outcomes[i] = r.simulate(ctx, batch, node, flips[i])
		}(i, node)
	}
	wg.Wait()
	return outcomes
}

func (r *run) simulate(ctx context.Context, batch int, node dag.Node, flip bool) (out outcome) {
	id := node.NodeID()
	event := func(kind EventKind) Event {
		return Event{Kind: kind, Batch: batch, Node: id, NodeKind: node.Kind(), Time: time.Now()}
	}
	defer func() {
		if rec := recover(); rec != nil {
			out.err = errors.Internal(fmt.Errorf("panic: %v", rec)).WithDetail("node", string(id))
		}
		if out.err != nil {
			e := event(EventNodeError)
			e.Error = out.err.Error()
			out.events = append(out.events, e)
			return
		}
		out.events = append(out.events, event(EventNodeComplete))
	}()

	out.passed = true
	if hook, ok := r.hooks[id]; ok {
		out.err = hook(ctx, node, r.state)
		if out.err != nil {
			return out
		}
	}

	switch n := node.(type) {
	case *dag.TaskNode:
		out.err = wait(ctx, r.taskDelay)
	case *dag.GateNode:
		out.passed = flip
		dag.Write(r.state, dag.GatePort(n.ID), flip)
		e := event(EventGateEvaluated)
		e.Passed = &flip
		out.events = append(out.events, e)
	case *dag.CollectNode:
		e := event(EventCollectWaiting)
		e.FormID = n.FormID
		out.events = append(out.events, e)
		out.err = wait(ctx, r.collectDelay)
	}
	return out
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
