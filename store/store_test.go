package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbukum/dagflow/component"
	"github.com/kbukum/dagflow/config"
	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/dag/dagtest"
	"github.com/kbukum/dagflow/errors"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), config.StoreConfig{Driver: store.DriverSQLite, DSN: ":memory:"}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleGraph(name string) *dag.Graph {
	return dagtest.NewGraph(name).
		Task("build", "make").
		Gate("main", "ref == 'main'").
		Task("deploy", "make deploy").
		Chain("build", "main", "deploy").
		Build()
}

func TestSaveAndGetGraph(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	g := sampleGraph("ci")
	saved, err := s.SaveGraph(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, "ci", saved.Name)

	rec, err := s.GetGraph(ctx, "ci")
	require.NoError(t, err)
	assert.Equal(t, g.Version, rec.Version)

	decoded, err := rec.Graph()
	require.NoError(t, err)
	assert.Equal(t, g.Name, decoded.Name)
	require.Len(t, decoded.Nodes, 3)
	assert.Equal(t, dag.NodeID("deploy"), decoded.Nodes[2].NodeID())
	assert.Equal(t, g.Edges, decoded.Edges)
}

func TestSaveGraph_ReplacesDefinition(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first, err := s.SaveGraph(ctx, sampleGraph("ci"))
	require.NoError(t, err)

	g := sampleGraph("ci")
	g.Version = "2.0.0"
	second, err := s.SaveGraph(ctx, g)
	require.NoError(t, err)
	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))

	recs, err := s.ListGraphs(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2.0.0", recs[0].Version)
}

func TestListGraphs_OrderedByName(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for _, name := range []string{"release", "ci", "nightly"} {
		_, err := s.SaveGraph(ctx, sampleGraph(name))
		require.NoError(t, err)
	}

	recs, err := s.ListGraphs(ctx)
	require.NoError(t, err)
	var names []string
	for _, r := range recs {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"ci", "nightly", "release"}, names)
}

func TestGetGraph_NotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.GetGraph(context.Background(), "ghost")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestDeleteGraph(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.SaveGraph(ctx, sampleGraph("ci"))
	require.NoError(t, err)
	_, err = s.RecordRun(ctx, &dag.Result{RunID: "r1", Graph: "ci"}, nil, time.Now())
	require.NoError(t, err)

	require.NoError(t, s.DeleteGraph(ctx, "ci"))

	_, err = s.GetGraph(ctx, "ci")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	runs, err := s.ListRuns(ctx, "ci", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	err = s.DeleteGraph(ctx, "ci")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestRecordRun_FromEngine(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	g := sampleGraph("ci")
	runner := dagtest.NewRunner().WithGate("main", false)
	started := time.Now()
	res, runErr := dag.NewEngine(dag.WithLogger(logger.NewNop())).Execute(ctx, g, runner)
	require.NoError(t, runErr)

	rec, err := s.RecordRun(ctx, res, runErr, started)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, rec.Status)

	runs, err := s.ListRuns(ctx, "ci", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)

	nodes, err := runs[0].NodeResults()
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, dag.NodeID("build"), nodes[0].ID)
	assert.Equal(t, dag.NodeID("main"), nodes[1].ID)
	require.NotNil(t, nodes[1].Gate)
	assert.False(t, *nodes[1].Gate)
	assert.Equal(t, dag.NodeID("deploy"), nodes[2].ID)
	assert.Equal(t, dag.StatusSkipped, nodes[2].Status)
}

func TestRecordRun_Statuses(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.RecordRun(ctx, &dag.Result{RunID: "r1", Graph: "ci"}, fmt.Errorf("boom"), base)
	require.NoError(t, err)
	_, err = s.RecordRun(ctx, &dag.Result{RunID: "r2", Graph: "ci"}, fmt.Errorf("stop: %w", context.Canceled), base.Add(time.Minute))
	require.NoError(t, err)
	_, err = s.RecordRun(ctx, &dag.Result{RunID: "r3", Graph: "other"}, nil, base.Add(2*time.Minute))
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, "ci", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, store.RunCancelled, runs[0].Status)
	assert.Equal(t, "r1", runs[1].ID)
	assert.Equal(t, store.RunFailed, runs[1].Status)
	assert.Equal(t, "boom", runs[1].Error)

	all, err := s.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "r3", all[0].ID)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := store.Open(context.Background(), config.StoreConfig{Driver: "oracle", DSN: "x"}, logger.NewNop())
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
}

func TestStore_Lifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	health := s.Health(ctx)
	assert.Equal(t, "store", health.Name)
	assert.Equal(t, component.StatusHealthy, health.Status)

	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, component.StatusUnhealthy, s.Health(ctx).Status)
}
