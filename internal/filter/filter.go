// Package filter connects watcher probes to a document filtering engine.
package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/probeline/probeline/internal/document"
	"github.com/probeline/probeline/internal/metrics"
)

// ErrFilterRegistration is returned when an engine refuses a filter.
var ErrFilterRegistration = errors.New("filter registration failed")

// ID identifies a registered filter.
type ID string

// Engine registers filters and tests documents against them.
type Engine interface {
	// Register stores a filter for (index, collection) and returns its ID. The
	// filter is whatever the watcher configuration holds; engines reject shapes
	// they cannot evaluate.
	Register(ctx context.Context, index, collection string, filter any) (ID, error)
	// Test returns the IDs of the filters of (index, collection) matched by doc.
	Test(ctx context.Context, index, collection string, doc document.Document) ([]ID, error)
}

// Adapter wraps an Engine with the semantics the watcher handler relies on.
type Adapter struct {
	engine  Engine
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewAdapter creates an Adapter.
func NewAdapter(engine Engine, logger *slog.Logger, recorder metrics.Recorder) *Adapter {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Adapter{
		engine:  engine,
		logger:  logger.With("component", "filter"),
		metrics: recorder,
	}
}

// Register registers filter for (index, collection).
func (a *Adapter) Register(ctx context.Context, index, collection string, filter any) (ID, error) {
	id, err := a.engine.Register(ctx, index, collection, filter)
	if err != nil {
		if errors.Is(err, ErrFilterRegistration) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrFilterRegistration, err)
	}
	return id, nil
}

// Matches reports whether doc is matched by the filter id. Engine failures
// count as no match.
func (a *Adapter) Matches(ctx context.Context, id ID, index, collection string, doc document.Document) bool {
	ids, err := a.engine.Test(ctx, index, collection, doc)
	if err != nil {
		a.logger.Warn("filter test failed",
			"index", index,
			"collection", collection,
			"filter_id", string(id),
			"error", err,
		)
		a.metrics.IncFilterError()
		return false
	}
	for _, matched := range ids {
		if matched == id {
			return true
		}
	}
	return false
}
