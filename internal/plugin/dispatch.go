package plugin

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/probeline/probeline/internal/document"
	"github.com/probeline/probeline/internal/hooks"
	"github.com/probeline/probeline/internal/probe"
)

// Event is a document lifecycle event raised by the host platform.
type Event struct {
	Name       string            `json:"event"`
	Index      string            `json:"index,omitempty"`
	Collection string            `json:"collection,omitempty"`
	Document   document.Document `json:"document"`
}

// Dispatch routes an event to the handlers of every probe type subscribed to
// it. It never fails: handler panics are recovered and logged.
func (p *Plugin) Dispatch(ctx context.Context, ev Event) {
	if p.Dummy() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "probe handler panicked",
				"hook", ev.Name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	for _, t := range p.table.Route(ev.Name) {
		switch t {
		case probe.TypeMonitor:
			p.handleMonitor(ev)
		case probe.TypeCounter:
			p.handleCounter(ev)
		case probe.TypeWatcher:
			p.handleWatcher(ctx, ev)
		}
	}
}

func (p *Plugin) handleMonitor(ev Event) {
	for _, m := range p.byType[probe.TypeMonitor] {
		if hooks.Subscribed(m, ev.Name) {
			p.measures.IncHook(m.ID, ev.Name)
		}
	}
}

// handleCounter applies +1 per increaser match and -1 per decreaser match,
// so a hook listed on both sides leaves the counter unchanged.
func (p *Plugin) handleCounter(ev Event) {
	for _, c := range p.byType[probe.TypeCounter] {
		if contains(c.Increasers, ev.Name) {
			p.measures.Add(c.ID, 1)
		}
		if contains(c.Decreasers, ev.Name) {
			p.measures.Add(c.ID, -1)
		}
	}
}

func (p *Plugin) handleWatcher(ctx context.Context, ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	for _, w := range p.byType[probe.TypeWatcher] {
		if w.Index != ev.Index || w.Collection != ev.Collection {
			continue
		}
		pl, ok := p.pipelines[w.ID]
		if !ok {
			continue
		}
		if !pl.offer(ev) {
			p.logger.WarnContext(ctx, "watcher queue full, event dropped",
				"probe_id", w.ID,
				"hook", ev.Name,
			)
			p.metrics.IncEventDropped(w.ID)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
