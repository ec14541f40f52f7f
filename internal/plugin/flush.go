package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/probeline/probeline/internal/measure"
)

// ErrUnknownProbe is returned for a probe ID that is not active.
var ErrUnknownProbe = errors.New("unknown probe")

// ErrDummy is returned by Flush when the plugin runs in dummy mode.
var ErrDummy = errors.New("plugin in dummy mode")

// Flush persists the current measure of a probe now. The measure is settled
// only if the write succeeds.
func (p *Plugin) Flush(ctx context.Context, id string) error {
	if p.Dummy() {
		return ErrDummy
	}
	if _, ok := p.registry.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProbe, id)
	}
	return p.flush(ctx, id, true)
}

// flushAsync flushes a probe on its own goroutine. Nothing starts once the
// plugin is shut down.
func (p *Plugin) flushAsync(id string, keepZero bool) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return
	}
	p.flushes.Add(1)
	p.mu.RUnlock()

	go func() {
		defer p.flushes.Done()
		ctx := context.Background()
		if p.flushTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.flushTimeout)
			defer cancel()
		}
		_ = p.flush(ctx, id, keepZero)
	}()
}

// flush writes a snapshot of the probe measure. Empty collections are never
// written; empty counts are written only when keepZero is set.
func (p *Plugin) flush(ctx context.Context, id string, keepZero bool) error {
	lock, ok := p.flushLocks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProbe, id)
	}
	lock.Lock()
	defer lock.Unlock()

	snap, ok := p.measures.Snapshot(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProbe, id)
	}
	if snap.Empty() && (snap.Kind == measure.KindContent || !keepZero) {
		p.metrics.IncFlush("skipped")
		return nil
	}

	start := time.Now()
	if err := p.gateway.Write(ctx, snap); err != nil {
		p.metrics.IncFlush("failed")
		p.logger.Error("failed to persist measure",
			"probe_id", id,
			"error", err,
		)
		return err
	}
	p.measures.Settle(snap)

	p.metrics.IncFlush("success")
	p.metrics.ObserveFlushDuration(time.Since(start))
	p.metrics.ObserveFlushSize(len(snap.Content))
	p.logger.Debug("measure persisted", "probe_id", id, "items", len(snap.Content))
	return nil
}

// Shutdown stops the flush timers, drains the watcher pipelines, waits for
// in-flight flushes and writes what is left of every measure.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.Dummy() {
		return nil
	}

	p.logger.Info("plugin shutdown initiated")
	p.scheduler.Stop()

	for _, pl := range p.pipelines {
		close(pl.events)
	}
	for _, pl := range p.pipelines {
		select {
		case <-pl.done:
		case <-ctx.Done():
			return fmt.Errorf("drain watcher %s: %w", pl.probe.ID, ctx.Err())
		}
	}

	inflight := make(chan struct{})
	go func() {
		p.flushes.Wait()
		close(inflight)
	}()
	select {
	case <-inflight:
	case <-ctx.Done():
		return fmt.Errorf("wait for flushes: %w", ctx.Err())
	}

	var g errgroup.Group
	for _, pr := range p.registry.All() {
		id := pr.ID
		g.Go(func() error {
			return p.flush(ctx, id, false)
		})
	}
	flushErr := g.Wait()

	if err := p.store.Close(); err != nil {
		p.logger.Warn("failed to close storage", "error", err)
	}

	if flushErr != nil {
		return fmt.Errorf("final flush: %w", flushErr)
	}
	p.logger.Info("plugin shutdown complete")
	return nil
}
