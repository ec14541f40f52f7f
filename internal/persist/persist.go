// Package persist writes probe measures to a storage backend.
package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/probeline/probeline/internal/measure"
	"github.com/probeline/probeline/internal/probe"
	"github.com/probeline/probeline/internal/storage"
)

// Document body fields.
const (
	FieldCount     = "count"
	FieldContent   = "content"
	FieldTimestamp = probe.TimestampField
)

// ErrStorePanic wraps a panic raised by the storage client.
var ErrStorePanic = errors.New("storage client panicked")

// Gateway turns measure snapshots into storage writes.
type Gateway struct {
	store        storage.Store
	storageIndex string
	clock        clock.Clock
}

// New creates a Gateway writing into storageIndex. A nil clock selects the
// wall clock.
func New(store storage.Store, storageIndex string, clk clock.Clock) *Gateway {
	if clk == nil {
		clk = clock.New()
	}
	return &Gateway{store: store, storageIndex: storageIndex, clock: clk}
}

// WriteCount persists one count document for probeID.
func (g *Gateway) WriteCount(ctx context.Context, probeID string, body map[string]any) (err error) {
	defer recoverStore(&err)

	doc := make(map[string]any, len(body)+1)
	for k, v := range body {
		doc[k] = v
	}
	doc[FieldTimestamp] = g.now()

	if err := g.store.Create(ctx, g.storageIndex, probeID, doc); err != nil {
		return fmt.Errorf("write count for %s: %w", probeID, err)
	}
	return nil
}

// WriteCollected persists collected items for probeID in a single bulk
// request, one document per item.
func (g *Gateway) WriteCollected(ctx context.Context, probeID string, items []measure.Item) (err error) {
	defer recoverStore(&err)

	if len(items) == 0 {
		return nil
	}

	ts := g.now()
	action := storage.BulkAction{Index: g.storageIndex, Type: probeID}
	bulk := make([]storage.BulkItem, 0, len(items))
	for _, item := range items {
		bulk = append(bulk, storage.BulkItem{
			Action: action,
			Body: map[string]any{
				FieldContent:   item,
				FieldTimestamp: ts,
			},
		})
	}

	if err := g.store.Bulk(ctx, bulk); err != nil {
		return fmt.Errorf("write %d collected documents for %s: %w", len(items), probeID, err)
	}
	return nil
}

// EnsureCollection prepares the storage index to receive collected documents
// of probeID.
func (g *Gateway) EnsureCollection(ctx context.Context, probeID string) (err error) {
	defer recoverStore(&err)

	if err := g.store.EnsureCollection(ctx, g.storageIndex, probeID); err != nil {
		return fmt.Errorf("prepare collection for %s: %w", probeID, err)
	}
	return nil
}

// Write persists a snapshot using the body shape of its measure kind.
func (g *Gateway) Write(ctx context.Context, snap measure.Snapshot) error {
	switch snap.Kind {
	case measure.KindHooks:
		body := make(map[string]any, len(snap.Hooks))
		for hook, n := range snap.Hooks {
			body[hook] = n
		}
		return g.WriteCount(ctx, snap.ProbeID, body)
	case measure.KindValue:
		return g.WriteCount(ctx, snap.ProbeID, map[string]any{FieldCount: snap.Value})
	default:
		return g.WriteCollected(ctx, snap.ProbeID, snap.Content)
	}
}

func (g *Gateway) now() int64 {
	return g.clock.Now().UnixMilli()
}

func recoverStore(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrStorePanic, r)
	}
}
