package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kbukum/dagflow/component"
	"github.com/kbukum/dagflow/config"
	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/errors"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/resilience"
)

// Store is the definition and run-history repository.
type Store struct {
	db     *sqlx.DB
	driver string
	log    *logger.Logger
}

// GraphRecord is a stored definition.
type GraphRecord struct {
	Name       string    `db:"name"`
	Version    string    `db:"version"`
	Definition string    `db:"definition"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Graph decodes the stored definition.
func (r GraphRecord) Graph() (*dag.Graph, error) {
	return dag.Decode([]byte(r.Definition), dag.FormatJSON)
}

// RunRecord is one entry of the run history.
type RunRecord struct {
	ID         string    `db:"id"`
	Graph      string    `db:"graph_name"`
	Status     string    `db:"status"`
	StartedAt  time.Time `db:"started_at"`
	DurationMs int64     `db:"duration_ms"`
	Error      string    `db:"error"`
	Nodes      string    `db:"nodes"`
}

// RunNode is the stored outcome of a node.
type RunNode struct {
	ID         dag.NodeID `json:"id"`
	Kind       dag.Kind   `json:"kind"`
	Status     dag.Status `json:"status"`
	Batch      int        `json:"batch"`
	Attempts   int        `json:"attempts,omitempty"`
	Gate       *bool      `json:"gate,omitempty"`
	DurationMs int64      `json:"durationMs"`
	Error      string     `json:"error,omitempty"`
}

// Run statuses.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// NodeResults decodes the stored node outcomes.
func (r RunRecord) NodeResults() ([]RunNode, error) {
	var nodes []RunNode
	if err := json.Unmarshal([]byte(r.Nodes), &nodes); err != nil {
		return nil, fmt.Errorf("store: decode nodes of run %s: %w", r.ID, err)
	}
	return nodes, nil
}

// Open connects with cfg, retrying the initial ping, and creates the schema.
func Open(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (*Store, error) {
	if _, ok := schemas[cfg.Driver]; !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unsupported store driver %q", cfg.Driver)
	}
	if log == nil {
		log = logger.Get("store")
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.Storage("open", err)
	}

	retry := resilience.DefaultRetryConfig()
	retry.RetryIf = func(err error) bool { return !stderrors.Is(err, context.Canceled) }
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		log.Warn("store ping failed", logger.Fields("attempt", attempt, "backoff", backoff.String(), logger.FieldError, err.Error()))
	}
	if err := resilience.RetryFunc(ctx, retry, func(ctx context.Context, _ int) error {
		return db.PingContext(ctx)
	}); err != nil {
		_ = db.Close()
		return nil, errors.Storage("ping", err)
	}

	if cfg.Driver == DriverSQLite {
		// A single connection keeps :memory: databases shared and avoids
		// SQLITE_BUSY on concurrent writers.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, errors.Storage("configure", err)
		}
	}

	s, err := New(ctx, db, cfg.Driver, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("store opened", logger.Fields("driver", cfg.Driver))
	return s, nil
}

// New wraps an open connection and creates the schema.
func New(ctx context.Context, db *sqlx.DB, driver string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Get("store")
	}
	s := &Store{db: db, driver: driver, log: log}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	stmts, ok := schemas[s.driver]
	if !ok {
		return errors.Newf(errors.ErrCodeInvalidConfig, "unsupported store driver %q", s.driver)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Storage("migrate", err)
		}
	}
	return nil
}

// DB returns the underlying connection.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the connection.
func (s *Store) Close() error { return s.db.Close() }

var _ component.Component = (*Store)(nil)

// Name identifies the store in a component registry.
func (s *Store) Name() string { return "store" }

// Start verifies the connection; Open has already migrated the schema.
func (s *Store) Start(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Storage("ping", err)
	}
	return nil
}

// Stop closes the connection.
func (s *Store) Stop(context.Context) error { return s.Close() }

// Health pings the database.
func (s *Store) Health(ctx context.Context) component.Health {
	return component.Check(ctx, s.Name(), s.db.PingContext)
}

// SaveGraph stores g under its name, replacing any previous definition.
func (s *Store) SaveGraph(ctx context.Context, g *dag.Graph) (*GraphRecord, error) {
	def, err := dag.Encode(g, dag.FormatJSON)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := &GraphRecord{
		Name:       g.Name,
		Version:    g.Version,
		Definition: string(def),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Storage("save graph", err)
	}
	defer func() { _ = tx.Rollback() }()

	var created time.Time
	err = tx.GetContext(ctx, &created, tx.Rebind(`SELECT created_at FROM graphs WHERE name = ?`), g.Name)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		_, err = tx.NamedExecContext(ctx, `INSERT INTO graphs (name, version, definition, created_at, updated_at)
			VALUES (:name, :version, :definition, :created_at, :updated_at)`, rec)
	case err == nil:
		rec.CreatedAt = created
		_, err = tx.NamedExecContext(ctx, `UPDATE graphs SET version = :version, definition = :definition,
			updated_at = :updated_at WHERE name = :name`, rec)
	}
	if err != nil {
		return nil, errors.Storage("save graph", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Storage("save graph", err)
	}
	s.log.Debug("graph saved", logger.Fields(logger.FieldGraph, g.Name, "version", g.Version))
	return rec, nil
}

// GetGraph loads the definition stored under name.
func (s *Store) GetGraph(ctx context.Context, name string) (*GraphRecord, error) {
	var rec GraphRecord
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(`SELECT name, version, definition, created_at, updated_at
		FROM graphs WHERE name = ?`), name)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("graph", name)
	}
	if err != nil {
		return nil, errors.Storage("get graph", err)
	}
	return &rec, nil
}

// ListGraphs returns every stored definition ordered by name.
func (s *Store) ListGraphs(ctx context.Context) ([]GraphRecord, error) {
	var recs []GraphRecord
	if err := s.db.SelectContext(ctx, &recs, `SELECT name, version, definition, created_at, updated_at
		FROM graphs ORDER BY name`); err != nil {
		return nil, errors.Storage("list graphs", err)
	}
	return recs, nil
}

// DeleteGraph removes a definition and its run history.
func (s *Store) DeleteGraph(ctx context.Context, name string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Storage("delete graph", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM graphs WHERE name = ?`), name)
	if err != nil {
		return errors.Storage("delete graph", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("graph", name)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM runs WHERE graph_name = ?`), name); err != nil {
		return errors.Storage("delete graph", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.Storage("delete graph", err)
	}
	return nil
}

// RecordRun appends an engine result to the run history. runErr is the
// error Execute returned alongside res.
func (s *Store) RecordRun(ctx context.Context, res *dag.Result, runErr error, startedAt time.Time) (*RunRecord, error) {
	nodes, err := json.Marshal(runNodes(res))
	if err != nil {
		return nil, errors.Storage("record run", err)
	}
	rec := &RunRecord{
		ID:         res.RunID,
		Graph:      res.Graph,
		Status:     runStatus(runErr),
		StartedAt:  startedAt.UTC(),
		DurationMs: res.Duration.Milliseconds(),
		Nodes:      string(nodes),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	if _, err := s.db.NamedExecContext(ctx, `INSERT INTO runs (id, graph_name, status, started_at, duration_ms, error, nodes)
		VALUES (:id, :graph_name, :status, :started_at, :duration_ms, :error, :nodes)`, rec); err != nil {
		return nil, errors.Storage("record run", err)
	}
	return rec, nil
}

// ListRuns returns the latest runs of graph, newest first. An empty graph
// lists every graph; limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, graph string, limit int) ([]RunRecord, error) {
	query := `SELECT id, graph_name, status, started_at, duration_ms, error, nodes FROM runs`
	var args []any
	if graph != "" {
		query += ` WHERE graph_name = ?`
		args = append(args, graph)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	var recs []RunRecord
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(query), args...); err != nil {
		return nil, errors.Storage("list runs", err)
	}
	return recs, nil
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return RunCompleted
	case stderrors.Is(err, context.Canceled):
		return RunCancelled
	default:
		return RunFailed
	}
}

// runNodes lists node outcomes in dispatch order, skipped nodes last.
func runNodes(res *dag.Result) []RunNode {
	order := append(res.Order(), res.Skipped()...)
	out := make([]RunNode, 0, len(order))
	for _, id := range order {
		nr, ok := res.Nodes[id]
		if !ok {
			continue
		}
		node := RunNode{
			ID:         nr.ID,
			Kind:       nr.Kind,
			Status:     nr.Status,
			Batch:      nr.Batch,
			Attempts:   nr.Attempts,
			Gate:       nr.Gate,
			DurationMs: nr.Duration.Milliseconds(),
		}
		if nr.Error != nil {
			node.Error = nr.Error.Error()
		}
		out = append(out, node)
	}
	return out
}
