package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // mysql://
	_ "modernc.org/sqlite"             // sqlite://
)

type sqlStore struct {
	db *sql.DB
	d  dialect
}

func openSQL(ctx context.Context, driver, dsn string, d dialect) (Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", driver, err)
	}
	if d == dialectSQLite {
		// A single connection keeps :memory: databases shared and avoids
		// SQLITE_BUSY between concurrent writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: connect %s: %w", driver, err)
	}

	s := &sqlStore{db: db, d: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) migrate(ctx context.Context) error {
	for _, stmt := range schema(s.d) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: apply schema: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Create(ctx context.Context, index, docType string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insertMeasureSQL, newDocumentID(), index, docType, string(payload)); err != nil {
		return fmt.Errorf("insert measure: %w", err)
	}
	return nil
}

// Bulk inserts every item in a single transaction.
func (s *sqlStore) Bulk(ctx context.Context, items []BulkItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, insertMeasureSQL)
	if err != nil {
		return fmt.Errorf("prepare bulk: %w", err)
	}
	defer stmt.Close()

	for i, item := range items {
		payload, err := json.Marshal(item.Body)
		if err != nil {
			return fmt.Errorf("encode item %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, newDocumentID(), item.Action.Index, item.Action.Type, string(payload)); err != nil {
			return fmt.Errorf("bulk insert item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk: %w", err)
	}
	return nil
}

func (s *sqlStore) EnsureCollection(ctx context.Context, index, docType string) error {
	var q string
	switch s.d {
	case dialectMySQL:
		q = `INSERT IGNORE INTO probe_collections (storage_index, probe_id) VALUES (?, ?)`
	default: // SQLite
		q = `INSERT INTO probe_collections (storage_index, probe_id) VALUES (?, ?)
			ON CONFLICT(storage_index, probe_id) DO NOTHING`
	}
	if _, err := s.db.ExecContext(ctx, q, index, docType); err != nil {
		return fmt.Errorf("register collection %s/%s: %w", index, docType, err)
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

const insertMeasureSQL = `INSERT INTO probe_measures (id, storage_index, probe_id, body) VALUES (?, ?, ?, ?)`
