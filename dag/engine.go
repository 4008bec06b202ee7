package dag

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/dagflow/errors"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/observability"
	"github.com/kbukum/dagflow/resilience"
)

// Engine executes a validated graph in dependency order. Batches run one
// after another; the nodes of a batch run concurrently.
type Engine struct {
	// MaxParallel limits concurrent nodes per batch (0 = unlimited).
	MaxParallel int
	// GatePolicy decides what happens behind a false gate. Empty means GateSkip.
	GatePolicy GatePolicy
	// Logger receives run, batch and node events. Nil uses the "engine" logger.
	Logger *logger.Logger
	// Metrics records runs and retries when set.
	Metrics *observability.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxParallel caps the number of nodes running at once.
func WithMaxParallel(n int) EngineOption {
	return func(e *Engine) { e.MaxParallel = n }
}

// WithGatePolicy selects the false-gate policy.
func WithGatePolicy(p GatePolicy) EngineOption {
	return func(e *Engine) { e.GatePolicy = p }
}

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) EngineOption {
	return func(e *Engine) { e.Logger = l }
}

// WithRunMetrics records run and retry metrics.
func WithRunMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) { e.Metrics = m }
}

// NewEngine creates an Engine with GateSkip and unlimited parallelism.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{GatePolicy: GateSkip}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs g with a fresh State. See ExecuteWithState.
func (e *Engine) Execute(ctx context.Context, g *Graph, runner TaskRunner) (*Result, error) {
	return e.ExecuteWithState(ctx, g, runner, NewState())
}

// ExecuteWithState runs g against runner, sharing state between nodes. The
// graph must already be validated. The first node failure cancels the rest
// of its batch; the run stops once the batch settles and the failure is
// returned together with the partial Result.
func (e *Engine) ExecuteWithState(ctx context.Context, g *Graph, runner TaskRunner, state *State) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := e.logger().WithFields(logger.Fields(logger.FieldRunID, runID, logger.FieldGraph, g.Name))

	ctx, span := observability.StartSpan(ctx, observability.SpanRun)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrGraph, g.Name)
	observability.SetSpanAttribute(ctx, observability.AttrRunID, runID)

	sched := NewScheduler(g, e.policy())
	result := newResult(runID, g.Name)

	var bulkhead *resilience.Bulkhead
	if e.MaxParallel > 0 {
		bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "dag-engine",
			MaxConcurrent: e.MaxParallel,
			MaxWait:       -1,
		})
	}

	log.Info("run started", logger.Fields(logger.FieldNodes, len(sched.idx.IDs())))

	var runErr error
	for batch := 0; !sched.Done(); batch++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		ids := sched.Next()
		result.Batches = append(result.Batches, ids)
		info := RunInfo{RunID: runID, Graph: g.Name, Defaults: g.Defaults, Batch: batch}
		outcomes := e.runBatch(ctx, sched.idx, runner, state, ids, info, bulkhead, log)

		for _, nr := range outcomes {
			result.record(nr)
		}
		if err := batchError(outcomes); err != nil {
			runErr = err
			break
		}

		for _, nr := range outcomes {
			passed := nr.Gate == nil || *nr.Gate
			for _, id := range sched.Resolve(nr.ID, passed) {
				n, _ := sched.idx.Node(id)
				result.record(NodeResult{ID: id, Kind: n.Kind(), Status: StatusSkipped, Batch: batch})
				log.Debug("node skipped", logger.Fields(logger.FieldNode, id, logger.FieldBatch, batch))
			}
		}
	}

	if runErr == nil {
		if blocked := sched.Unscheduled(); len(blocked) > 0 {
			log.Debug("nodes left behind false gates", logger.Fields(logger.FieldNodes, blocked))
		}
	}

	result.Duration = time.Since(start)
	status := "completed"
	if runErr != nil {
		status = "failed"
		observability.SetSpanError(ctx, runErr)
		log.Error("run failed", logger.MergeWithDuration(logger.MergeWithError(nil, runErr), result.Duration))
	} else {
		log.Info("run completed", logger.MergeWithDuration(
			logger.Fields(logger.FieldBatch, len(result.Batches)), result.Duration))
	}
	if e.Metrics != nil {
		e.Metrics.RecordRun(ctx, g.Name, status, result.Duration)
		if runErr != nil {
			e.Metrics.RecordError(ctx, string(errors.Code(runErr)), "engine")
		}
	}

	return result, runErr
}

func (e *Engine) runBatch(ctx context.Context, idx *Index, runner TaskRunner, state *State, ids []NodeID,
	info RunInfo, bulkhead *resilience.Bulkhead, log *logger.Logger) []NodeResult {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	batchCtx, span := observability.StartSpan(batchCtx, observability.SpanBatch)
	defer span.End()
	observability.SetSpanAttribute(batchCtx, observability.AttrBatch, info.Batch)

	log.Debug("batch started", logger.Fields(logger.FieldBatch, info.Batch, logger.FieldNodes, ids))

	out := make([]NodeResult, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		node, _ := idx.Node(id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			run := func() error {
				out[i] = e.executeNode(batchCtx, node, runner, state, info)
				return out[i].Error
			}
			var err error
			if bulkhead != nil {
				err = bulkhead.Execute(batchCtx, run)
			} else {
				err = run()
			}
			if err == nil {
				return
			}
			if out[i].ID == "" {
				out[i] = NodeResult{ID: id, Kind: node.Kind(), Status: StatusCancelled, Batch: info.Batch, Error: err}
			}
			if out[i].Status == StatusFailed {
				log.Error("node failed", logger.MergeWithError(logger.NodeFields(string(id), string(node.Kind())), err))
			}
			cancel()
		}()
	}
	wg.Wait()
	return out
}

func (e *Engine) executeNode(ctx context.Context, node Node, runner TaskRunner, state *State, info RunInfo) (nr NodeResult) {
	start := time.Now()
	nr = NodeResult{ID: node.NodeID(), Kind: node.Kind(), Batch: info.Batch, Attempts: 1}
	defer func() {
		if r := recover(); r != nil {
			nr.Error = errors.Internal(fmt.Errorf("panic in node %s: %v", nr.ID, r)).WithDetail("node", string(nr.ID))
		}
		nr.Duration = time.Since(start)
		nr.Status = statusOf(nr.Error)
	}()

	ctx = WithRunInfo(ctx, info)
	switch n := node.(type) {
	case *TaskNode:
		nr.Attempts, nr.Error = e.runTask(ctx, n, runner, state, info)
	case *GateNode:
		passed, err := runner.EvaluateGate(ctx, n, state)
		if err != nil {
			nr.Error = errors.GateFailed(string(n.ID), err)
			return nr
		}
		state.Set(GateKey(n.ID), passed)
		nr.Gate = &passed
	case *FanoutNode:
		if err := runner.OnFanout(ctx, n, state); err != nil {
			nr.Error = errors.NodeFailed(string(n.ID), string(KindFanout), err)
		}
	case *FaninNode:
		if err := runner.OnFanin(ctx, n, state); err != nil {
			nr.Error = errors.NodeFailed(string(n.ID), string(KindFanin), err)
		}
	case *CollectNode:
		nr.Error = runCollect(ctx, n, runner, state, info.Defaults)
	}
	return nr
}

func (e *Engine) runTask(ctx context.Context, n *TaskNode, runner TaskRunner, state *State, info RunInfo) (int, error) {
	cfg := retryConfig(effectiveRetry(n, info.Defaults))
	if info.Defaults != nil {
		cfg.AttemptTimeout = info.Defaults.Timeout
	}
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		e.logger().Warn("retrying task", logger.Fields(
			logger.FieldRunID, info.RunID,
			logger.FieldNode, string(n.ID),
			logger.FieldAttempt, attempt,
			logger.FieldError, err.Error(),
			"backoff_ms", backoff.Milliseconds(),
		))
		if e.Metrics != nil {
			e.Metrics.RecordRetry(ctx, string(n.ID))
		}
	}

	attempts := 0
	err := resilience.RetryFunc(ctx, cfg, func(attemptCtx context.Context, attempt int) error {
		attempts = attempt
		info.Attempt = attempt
		err := runner.RunTask(WithRunInfo(attemptCtx, info), n, state)
		if err == nil {
			return nil
		}
		return taskError(attemptCtx, n.ID, err)
	})
	return attempts, err
}

func runCollect(ctx context.Context, n *CollectNode, runner TaskRunner, state *State, defaults *Defaults) error {
	c, ok := runner.(Collector)
	if !ok {
		return nil
	}
	timeout := n.Timeout
	if timeout == 0 && defaults != nil {
		timeout = defaults.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := c.OnCollect(ctx, n, state); err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.Timeout(string(n.ID)).WithCause(err)
		}
		return errors.NodeFailed(string(n.ID), string(KindCollect), err)
	}
	return nil
}

// effectiveRetry prefers the task's own policy over the graph default.
func effectiveRetry(n *TaskNode, defaults *Defaults) *RetryPolicy {
	if n.Retry != nil {
		return n.Retry
	}
	if defaults != nil {
		return defaults.Retry
	}
	return nil
}

func retryConfig(p *RetryPolicy) resilience.RetryConfig {
	if p == nil {
		return resilience.SingleAttempt()
	}
	cfg := resilience.RetryConfig{
		MaxAttempts: p.MaxAttempts,
		RetryIf:     resilience.DefaultRetryIf,
	}
	if b := p.Backoff; b != nil {
		cfg.InitialBackoff = time.Duration(b.BaseDelayMs) * time.Millisecond
		cfg.MaxBackoff = time.Duration(b.MaxDelayMs) * time.Millisecond
		cfg.BackoffFactor = b.Factor
	}
	return cfg
}

func taskError(attemptCtx context.Context, id NodeID, err error) error {
	if stderrors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return errors.Timeout(string(id)).WithCause(err)
	}
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	return errors.TaskFailed(string(id), err)
}

func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusCompleted
	case stderrors.Is(err, context.Canceled):
		return StatusCancelled
	default:
		return StatusFailed
	}
}

// batchError returns the first failure in batch order, falling back to the
// first cancellation when nothing failed outright.
func batchError(outcomes []NodeResult) error {
	var cancelled error
	for _, nr := range outcomes {
		switch nr.Status {
		case StatusFailed:
			return nr.Error
		case StatusCancelled:
			if cancelled == nil {
				cancelled = nr.Error
			}
		}
	}
	return cancelled
}

func (e *Engine) policy() GatePolicy {
	if e.GatePolicy == "" {
		return GateSkip
	}
	return e.GatePolicy
}

func (e *Engine) logger() *logger.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logger.Get("engine")
}
