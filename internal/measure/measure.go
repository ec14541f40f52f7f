// Package measure holds the in-memory aggregation state of active probes.
//
// Each probe owns one entry, shaped by its type. Entries are mutated by probe
// handlers and settled by the flush path once a snapshot has been persisted.
package measure

import (
	"sync"

	"github.com/probeline/probeline/internal/probe"
)

// Kind is the shape of a measure.
type Kind int

const (
	// KindHooks is a per-hook counter map (monitors).
	KindHooks Kind = iota
	// KindValue is a signed scalar (counters, counting watchers).
	KindValue
	// KindContent is a list of collected documents (collecting watchers).
	KindContent
)

// Item is a collected document.
type Item = map[string]any

// Snapshot is a point-in-time copy of a measure.
type Snapshot struct {
	ProbeID string           `json:"probe_id"`
	Kind    Kind             `json:"kind"`
	Hooks   map[string]int64 `json:"hooks,omitempty"`
	Value   int64            `json:"value"`
	Content []Item           `json:"content,omitempty"`
}

// Empty reports whether the snapshot carries nothing to persist.
func (s Snapshot) Empty() bool {
	switch s.Kind {
	case KindHooks:
		for _, n := range s.Hooks {
			if n != 0 {
				return false
			}
		}
		return true
	case KindValue:
		return s.Value == 0
	default:
		return len(s.Content) == 0
	}
}

type entry struct {
	mu      sync.Mutex
	kind    Kind
	hooks   map[string]int64
	value   int64
	content []Item
}

// Store keeps one measure per probe. The set of entries is fixed at
// construction; individual entries are safe for concurrent use.
type Store struct {
	entries map[string]*entry
}

// KindOf returns the measure shape used by p.
func KindOf(p *probe.Probe) Kind {
	switch {
	case p.Type == probe.TypeMonitor:
		return KindHooks
	case p.Collecting():
		return KindContent
	default:
		return KindValue
	}
}

// New creates zeroed measures for the given probes.
func New(probes []*probe.Probe) *Store {
	s := &Store{entries: make(map[string]*entry, len(probes))}
	for _, p := range probes {
		e := &entry{kind: KindOf(p)}
		if e.kind == KindHooks {
			e.hooks = make(map[string]int64, len(p.Hooks))
			for _, h := range p.Hooks {
				e.hooks[h] = 0
			}
		}
		if e.kind == KindContent {
			e.content = []Item{}
		}
		s.entries[p.ID] = e
	}
	return s
}

// IncHook increments the counter of hook in a monitor measure.
// It returns false if the probe has no such hook.
func (s *Store) IncHook(id, hook string) bool {
	e, ok := s.entries[id]
	if !ok || e.kind != KindHooks {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.hooks[hook]; !ok {
		return false
	}
	e.hooks[hook]++
	return true
}

// Add moves a scalar measure by delta. No floor is enforced.
func (s *Store) Add(id string, delta int64) bool {
	e, ok := s.entries[id]
	if !ok || e.kind != KindValue {
		return false
	}
	e.mu.Lock()
	e.value += delta
	e.mu.Unlock()
	return true
}

// Append adds a collected document to a content measure.
func (s *Store) Append(id string, item Item) bool {
	e, ok := s.entries[id]
	if !ok || e.kind != KindContent {
		return false
	}
	e.mu.Lock()
	e.content = append(e.content, item)
	e.mu.Unlock()
	return true
}

// Snapshot copies the current measure of a probe.
func (s *Store) Snapshot(id string) (Snapshot, bool) {
	e, ok := s.entries[id]
	if !ok {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{ProbeID: id, Kind: e.kind, Value: e.value}
	switch e.kind {
	case KindHooks:
		snap.Hooks = make(map[string]int64, len(e.hooks))
		for h, n := range e.hooks {
			snap.Hooks[h] = n
		}
	case KindContent:
		snap.Content = make([]Item, len(e.content))
		copy(snap.Content, e.content)
	}
	return snap, true
}

// Settle removes a persisted snapshot from the live measure. Mutations applied
// after the snapshot was taken are kept, so a measure that was not touched in
// the meantime returns to its initial value.
func (s *Store) Settle(snap Snapshot) {
	e, ok := s.entries[snap.ProbeID]
	if !ok || e.kind != snap.Kind {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.kind {
	case KindHooks:
		for h, n := range snap.Hooks {
			if _, ok := e.hooks[h]; ok {
				e.hooks[h] -= n
			}
		}
	case KindValue:
		e.value -= snap.Value
	case KindContent:
		n := len(snap.Content)
		if n > len(e.content) {
			n = len(e.content)
		}
		rest := make([]Item, len(e.content)-n)
		copy(rest, e.content[n:])
		e.content = rest
	}
}

// Has reports whether the store tracks probe id.
func (s *Store) Has(id string) bool {
	_, ok := s.entries[id]
	return ok
}
