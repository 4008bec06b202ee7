// Package schedule fires graphs on their schedule triggers using
// robfig/cron. Runs of the same graph never overlap, even across its
// triggers; a fire that arrives while a run of the graph is still going is
// skipped.
package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/errors"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/validation"
)

// Job runs a graph for one fire of trigger.
type Job func(ctx context.Context, g *dag.Graph, trigger dag.Trigger)

// Entry describes a registered schedule.
type Entry struct {
	Graph string
	Cron  string
	Next  time.Time
	Prev  time.Time
}

// Scheduler owns a cron runner.
type Scheduler struct {
	cron    *cron.Cron
	job     Job
	log     *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	entries map[string][]registered
}

type registered struct {
	id   cron.EntryID
	expr string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *logger.Logger) Option { return func(s *Scheduler) { s.log = l } }

// New creates a stopped Scheduler that calls job on every fire.
func New(job Job, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		job:     job,
		log:     logger.Get("schedule"),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string][]registered),
	}
	for _, opt := range opts {
		opt(s)
	}
	cl := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	return s
}

// Register schedules every schedule trigger of g, replacing an earlier
// registration under the same graph name. It returns the number of
// entries added.
func (s *Scheduler) Register(g *dag.Graph) (int, error) {
	var triggers []dag.Trigger
	for _, t := range g.Triggers {
		if t.Kind == dag.TriggerSchedule {
			triggers = append(triggers, t)
		}
	}
	if len(triggers) == 0 {
		return 0, errors.InvalidGraph("graph has no schedule trigger").WithDetail("graph", g.Name)
	}

	running := new(sync.Mutex)
	var added []registered
	for _, t := range triggers {
		sched, err := validation.ParseCron(t.Cron)
		if err != nil {
			s.remove(added)
			return 0, errors.InvalidGraph("invalid cron expression").
				WithDetail("graph", g.Name).
				WithDetail("cron", t.Cron).
				WithCause(err)
		}
		added = append(added, registered{id: s.cron.Schedule(sched, s.fire(g, t, running)), expr: t.Cron})
	}

	s.mu.Lock()
	previous := s.entries[g.Name]
	s.entries[g.Name] = added
	s.mu.Unlock()
	s.remove(previous)

	s.log.Info("graph scheduled", logger.Fields(logger.FieldGraph, g.Name, "entries", len(added)))
	return len(added), nil
}

// Unregister removes every entry of the named graph.
func (s *Scheduler) Unregister(name string) bool {
	s.mu.Lock()
	regs, ok := s.entries[name]
	delete(s.entries, name)
	s.mu.Unlock()
	s.remove(regs)
	return ok
}

func (s *Scheduler) remove(regs []registered) {
	for _, r := range regs {
		s.cron.Remove(r.id)
	}
}

// fire returns the job for one trigger of g. running is shared by every
// entry of g.
func (s *Scheduler) fire(g *dag.Graph, t dag.Trigger, running *sync.Mutex) cron.FuncJob {
	return func() {
		if s.ctx.Err() != nil {
			return
		}
		if !running.TryLock() {
			s.log.Info("schedule skipped, graph still running", logger.Fields(logger.FieldGraph, g.Name, "cron", t.Cron))
			return
		}
		defer running.Unlock()
		s.log.Debug("schedule fired", logger.Fields(logger.FieldGraph, g.Name, "cron", t.Cron))
		s.job(s.ctx, g, t)
	}
}

// Entries lists the registered schedules ordered by graph name then cron.
// Next is zero until the scheduler is started.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for name, regs := range s.entries {
		for _, r := range regs {
			e := s.cron.Entry(r.id)
			out = append(out, Entry{Graph: name, Cron: r.expr, Next: e.Next, Prev: e.Prev})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Graph != out[j].Graph {
			return out[i].Graph < out[j].Graph
		}
		return out[i].Cron < out[j].Cron
	})
	return out
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops firing, cancels the context passed to running jobs and waits
// for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the dagflow logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, logger.Fields(keysAndValues...))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, logger.MergeWithError(logger.Fields(keysAndValues...), err))
}
