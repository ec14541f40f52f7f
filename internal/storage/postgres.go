package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, databaseURL string) (Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("storage: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping database: %w", err)
	}

	for _, stmt := range schema(dialectPostgres) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("storage: apply schema: %w", err)
		}
	}
	return &postgresStore{pool: pool}, nil
}

const insertMeasurePG = `
	INSERT INTO probe_measures (id, storage_index, probe_id, body)
	VALUES ($1, $2, $3, $4)
`

func (s *postgresStore) Create(ctx context.Context, index, docType string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := s.pool.Exec(ctx, insertMeasurePG, newDocumentID(), index, docType, payload); err != nil {
		return fmt.Errorf("insert measure: %w", err)
	}
	return nil
}

// Bulk sends all items as one batch, executed in an implicit transaction.
func (s *postgresStore) Bulk(ctx context.Context, items []BulkItem) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, item := range items {
		payload, err := json.Marshal(item.Body)
		if err != nil {
			return fmt.Errorf("encode item %d: %w", i, err)
		}
		batch.Queue(insertMeasurePG, newDocumentID(), item.Action.Index, item.Action.Type, payload)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(items); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert item %d: %w", i, err)
		}
	}
	return nil
}

func (s *postgresStore) EnsureCollection(ctx context.Context, index, docType string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO probe_collections (storage_index, probe_id)
		VALUES ($1, $2)
		ON CONFLICT (storage_index, probe_id) DO NOTHING
	`, index, docType)
	if err != nil {
		return fmt.Errorf("register collection %s/%s: %w", index, docType, err)
	}
	return nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
