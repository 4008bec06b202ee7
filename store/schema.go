package store

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var schemas = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS graphs (
			name TEXT PRIMARY KEY,
			version TEXT NOT NULL,
			definition TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			graph_name TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			nodes TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_graph ON runs(graph_name, started_at)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS graphs (
			name VARCHAR(100) PRIMARY KEY,
			version VARCHAR(64) NOT NULL,
			definition TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id VARCHAR(36) PRIMARY KEY,
			graph_name VARCHAR(100) NOT NULL,
			status VARCHAR(16) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			nodes TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_graph ON runs(graph_name, started_at)`,
	},
	DriverMySQL: {
		`CREATE TABLE IF NOT EXISTS graphs (
			name VARCHAR(100) PRIMARY KEY,
			version VARCHAR(64) NOT NULL,
			definition LONGTEXT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id VARCHAR(36) PRIMARY KEY,
			graph_name VARCHAR(100) NOT NULL,
			status VARCHAR(16) NOT NULL,
			started_at DATETIME(6) NOT NULL,
			duration_ms BIGINT NOT NULL,
			error TEXT NOT NULL,
			nodes LONGTEXT NOT NULL,
			INDEX idx_runs_graph (graph_name, started_at)
		)`,
	},
}
