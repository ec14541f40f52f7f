// Package testutil holds helpers shared by tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/probeline/probeline/internal/probe"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

// DiscardLogger returns a logger that writes nowhere.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ResetProbeTables empties the measure tables of a Postgres test database.
func ResetProbeTables(ctx context.Context, pool *pgxpool.Pool) error {
	for _, table := range []string{"probe_measures", "probe_collections"} {
		if _, err := pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestMonitor creates a monitor probe on the given hooks.
func NewTestMonitor(t testing.TB, id string, hooks ...string) *probe.Probe {
	t.Helper()
	return &probe.Probe{
		ID:       id,
		Type:     probe.TypeMonitor,
		Hooks:    hooks,
		Interval: probe.DefaultInterval,
	}
}

// NewTestCounter creates a counter probe.
func NewTestCounter(t testing.TB, id string, increasers, decreasers []string) *probe.Probe {
	t.Helper()
	return &probe.Probe{
		ID:         id,
		Type:       probe.TypeCounter,
		Increasers: increasers,
		Decreasers: decreasers,
		Interval:   probe.DefaultInterval,
	}
}

// NewTestWatcher creates a counting watcher with immediate flush.
func NewTestWatcher(t testing.TB, id, index, collection string) *probe.Probe {
	t.Helper()
	return &probe.Probe{
		ID:         id,
		Type:       probe.TypeWatcher,
		Index:      index,
		Collection: collection,
	}
}
