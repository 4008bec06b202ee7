package dag

import (
	"context"
	"time"

	"github.com/kbukum/dagflow/errors"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/observability"
)

// hook runs one runner call for a node and reports its error.
type hook func(ctx context.Context) error

// observer wraps every runner call with the same before/after logic.
type observer struct {
	inner TaskRunner
	wrap  func(ctx context.Context, node Node, call hook) error
}

func (o *observer) RunTask(ctx context.Context, task *TaskNode, state *State) error {
	return o.wrap(ctx, task, func(ctx context.Context) error {
		return o.inner.RunTask(ctx, task, state)
	})
}

func (o *observer) EvaluateGate(ctx context.Context, gate *GateNode, state *State) (bool, error) {
	var passed bool
	err := o.wrap(ctx, gate, func(ctx context.Context) error {
		var err error
		passed, err = o.inner.EvaluateGate(ctx, gate, state)
		return err
	})
	return passed, err
}

func (o *observer) OnFanout(ctx context.Context, node *FanoutNode, state *State) error {
	return o.wrap(ctx, node, func(ctx context.Context) error {
		return o.inner.OnFanout(ctx, node, state)
	})
}

func (o *observer) OnFanin(ctx context.Context, node *FaninNode, state *State) error {
	return o.wrap(ctx, node, func(ctx context.Context) error {
		return o.inner.OnFanin(ctx, node, state)
	})
}

// OnCollect forwards to the wrapped runner when it is a Collector.
func (o *observer) OnCollect(ctx context.Context, node *CollectNode, state *State) error {
	c, ok := o.inner.(Collector)
	if !ok {
		return nil
	}
	return o.wrap(ctx, node, func(ctx context.Context) error {
		return c.OnCollect(ctx, node, state)
	})
}

// WithTracing wraps runner so every call runs in an OpenTelemetry span named
// "{prefix}.{kind}". An empty prefix uses observability.SpanNode.
func WithTracing(runner TaskRunner, prefix string) TaskRunner {
	if prefix == "" {
		prefix = observability.SpanNode
	}
	return &observer{inner: runner, wrap: func(ctx context.Context, node Node, call hook) error {
		ctx, span := observability.StartSpan(ctx, prefix+"."+string(node.Kind()))
		defer span.End()

		observability.SetSpanAttribute(ctx, observability.AttrNode, string(node.NodeID()))
		observability.SetSpanAttribute(ctx, observability.AttrKind, string(node.Kind()))
		if info, ok := RunInfoFrom(ctx); ok {
			observability.SetSpanAttribute(ctx, observability.AttrRunID, info.RunID)
			observability.SetSpanAttribute(ctx, observability.AttrBatch, info.Batch)
			if info.Attempt > 0 {
				observability.SetSpanAttribute(ctx, observability.AttrAttempt, info.Attempt)
			}
		}

		err := call(ctx)
		if err != nil {
			observability.SetSpanError(ctx, err)
		}
		return err
	}}
}

// WithMetrics wraps runner with node count, duration and error metrics.
func WithMetrics(runner TaskRunner, metrics *observability.Metrics) TaskRunner {
	return &observer{inner: runner, wrap: func(ctx context.Context, node Node, call hook) error {
		kind := string(node.Kind())
		metrics.RecordNodeStart(ctx, kind)
		start := time.Now()
		err := call(ctx)

		status := "ok"
		if err != nil {
			status = "error"
			metrics.RecordError(ctx, string(errors.Code(err)), "runner")
		}
		metrics.RecordNodeEnd(ctx, kind, status, time.Since(start))
		return err
	}}
}

// WithLogging wraps runner with per-call logging: node, kind, duration and
// the error when one occurs.
func WithLogging(runner TaskRunner, log *logger.Logger) TaskRunner {
	return &observer{inner: runner, wrap: func(ctx context.Context, node Node, call hook) error {
		start := time.Now()
		err := call(ctx)

		fields := logger.MergeWithDuration(logger.NodeFields(string(node.NodeID()), string(node.Kind())), time.Since(start))
		if info, ok := RunInfoFrom(ctx); ok && info.Attempt > 0 {
			fields[logger.FieldAttempt] = info.Attempt
		}

		if err != nil {
			log.Error("dag node failed", logger.MergeWithError(fields, err))
		} else {
			log.Debug("dag node completed", fields)
		}
		return err
	}}
}
