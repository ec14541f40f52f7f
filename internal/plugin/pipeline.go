package plugin

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/probeline/probeline/internal/document"
	"github.com/probeline/probeline/internal/probe"
)

// pipeline processes the events of one watcher in delivery order.
type pipeline struct {
	probe  *probe.Probe
	events chan Event
	done   chan struct{}
}

func (p *Plugin) startPipeline(w *probe.Probe, size int) *pipeline {
	pl := &pipeline{
		probe:  w,
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(pl.done)
		for ev := range pl.events {
			p.processWatcherEvent(w, ev)
		}
	}()
	return pl
}

// offer queues ev without blocking. It reports false when the queue is full.
func (pl *pipeline) offer(ev Event) bool {
	select {
	case pl.events <- ev:
		return true
	default:
		return false
	}
}

// processWatcherEvent runs the filter, records the match and flushes
// immediately when the watcher has no interval.
func (p *Plugin) processWatcherEvent(w *probe.Probe, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("watcher panicked",
				"probe_id", w.ID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if !p.filters.Matches(context.Background(), p.filterIDs[w.ID], w.Index, w.Collection, ev.Document) {
		return
	}

	switch w.CollectMode {
	case probe.CollectAll:
		p.measures.Append(w.ID, ev.Document.Flatten())
	case probe.CollectPaths:
		item, err := document.Project(ev.Document, w.Collects)
		if err != nil {
			p.logger.Warn("failed to project document",
				"probe_id", w.ID,
				"document_id", ev.Document.ID,
				"error", err,
			)
			return
		}
		p.measures.Append(w.ID, item)
	default:
		p.measures.Add(w.ID, 1)
	}

	if w.Immediate() {
		p.flushAsync(w.ID, false)
	}
}
