package storage

type dialect int

const (
	dialectSQLite dialect = iota
	dialectMySQL
	dialectPostgres
)

// schema returns the DDL creating the measure tables for d. Statements are
// idempotent and run on every open.
func schema(d dialect) []string {
	switch d {
	case dialectPostgres:
		return []string{
			`CREATE TABLE IF NOT EXISTS probe_measures (
				id            TEXT        PRIMARY KEY,
				storage_index TEXT        NOT NULL,
				probe_id      TEXT        NOT NULL,
				body          JSONB       NOT NULL,
				created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_probe_measures_probe
				ON probe_measures (storage_index, probe_id, created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS probe_collections (
				storage_index TEXT        NOT NULL,
				probe_id      TEXT        NOT NULL,
				prepared_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (storage_index, probe_id)
			)`,
		}
	case dialectMySQL:
		// Index creation is part of CREATE TABLE: MySQL has no CREATE INDEX IF NOT EXISTS.
		return []string{
			`CREATE TABLE IF NOT EXISTS probe_measures (
				id            VARCHAR(26)  PRIMARY KEY,
				storage_index VARCHAR(255) NOT NULL,
				probe_id      VARCHAR(255) NOT NULL,
				body          JSON         NOT NULL,
				created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
				INDEX idx_probe_measures_probe (storage_index, probe_id, created_at)
			)`,
			`CREATE TABLE IF NOT EXISTS probe_collections (
				storage_index VARCHAR(255) NOT NULL,
				probe_id      VARCHAR(255) NOT NULL,
				prepared_at   DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (storage_index, probe_id)
			)`,
		}
	default: // SQLite
		return []string{
			`CREATE TABLE IF NOT EXISTS probe_measures (
				id            TEXT     PRIMARY KEY,
				storage_index TEXT     NOT NULL,
				probe_id      TEXT     NOT NULL,
				body          TEXT     NOT NULL,
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_probe_measures_probe
				ON probe_measures (storage_index, probe_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS probe_collections (
				storage_index TEXT     NOT NULL,
				probe_id      TEXT     NOT NULL,
				prepared_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (storage_index, probe_id)
			)`,
		}
	}
}
