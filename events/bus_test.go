package events_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/dag/dagtest"
	"github.com/kbukum/dagflow/events"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/simulator"
)

func newBus(t *testing.T, opts ...events.Option) *events.Bus {
	t.Helper()
	bus := events.NewBus(append([]events.Option{events.WithLogger(logger.NewNop())}, opts...)...)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func collect(t *testing.T, ch <-chan simulator.Event, n int) []simulator.Event {
	t.Helper()
	var out []simulator.Event
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case e, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d events", len(out), n)
			}
			out = append(out, e)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestPublishSubscribe(t *testing.T) {
	bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, simulator.Event{Seq: 0, Kind: simulator.EventNodeStart, Node: "build", RunID: "r1"}))
	require.NoError(t, bus.Publish(ctx, simulator.Event{Seq: 1, Kind: simulator.EventNodeComplete, Node: "build", RunID: "r1"}))

	got := collect(t, ch, 2)
	assert.Equal(t, simulator.EventNodeStart, got[0].Kind)
	assert.Equal(t, dag.NodeID("build"), got[0].Node)
	assert.Equal(t, simulator.EventNodeComplete, got[1].Kind)
	assert.Equal(t, "r1", got[1].RunID)
}

func TestPublish_NoSubscribers(t *testing.T) {
	bus := newBus(t)
	assert.NoError(t, bus.Publish(context.Background(), simulator.Event{Kind: simulator.EventBatchStart}))
}

func TestSubscribe_ClosedOnCancel(t *testing.T) {
	bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not closed")
	}
}

func TestSimulatorStreamsInOrder(t *testing.T) {
	bus := newBus(t, events.WithTopic("ci"))
	assert.Equal(t, "ci", bus.Topic())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	g := dagtest.NewGraph("ci").
		Task("a", "true").
		Task("b", "true").
		Task("c", "true").
		Edge("a", "b").
		Edge("a", "c").
		Build()

	sim, err := simulator.New(
		simulator.WithTaskDelay(0),
		simulator.WithSeed(1),
		simulator.WithLogger(logger.NewNop()),
		simulator.WithSink(bus),
	).Run(ctx, g)
	require.NoError(t, err)

	got := collect(t, ch, len(sim.Events))
	for i, e := range got {
		assert.Equal(t, i, e.Seq)
		assert.Equal(t, sim.Events[i].Kind, e.Kind)
		assert.Equal(t, sim.Events[i].Node, e.Node)
	}
}

func TestPublish_AfterClose(t *testing.T) {
	bus := events.NewBus(events.WithLogger(logger.NewNop()))
	require.NoError(t, bus.Close())
	assert.Error(t, bus.Publish(context.Background(), simulator.Event{Kind: simulator.EventBatchStart}))
}

func TestLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "test", &buf)
	adapter := events.NewLoggerAdapter(l).With(map[string]interface{}{"topic": "ci"})

	adapter.Error("publish failed", fmt.Errorf("closed"), nil)
	adapter.Trace("traced", nil)

	out := buf.String()
	assert.Contains(t, out, `"topic":"ci"`)
	assert.Contains(t, out, `"error":"closed"`)
	assert.Contains(t, out, "traced")
}
