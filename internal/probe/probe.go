// Package probe parses and validates probe definitions.
//
// A probe is a configured unit of observation. Three types exist: monitors
// count how many times each of their hooks fired, counters track a signed
// value moved by increaser and decreaser events, and watchers filter
// documents flowing through the host and either count or collect them.
package probe

import (
	"sort"
	"time"
)

// Type identifies the aggregation semantics of a probe.
type Type string

// Probe types.
const (
	TypeMonitor Type = "monitor"
	TypeCounter Type = "counter"
	TypeWatcher Type = "watcher"
)

// Types lists every supported probe type.
var Types = []Type{TypeMonitor, TypeCounter, TypeWatcher}

// Valid reports whether t is a supported probe type.
func (t Type) Valid() bool {
	switch t {
	case TypeMonitor, TypeCounter, TypeWatcher:
		return true
	}
	return false
}

// CollectMode tells a watcher what to do with matching documents.
type CollectMode int

const (
	// CollectNone counts matching documents.
	CollectNone CollectMode = iota
	// CollectAll stores whole matching documents.
	CollectAll
	// CollectPaths stores a projection of matching documents.
	CollectPaths
)

// CollectAllMarker is the configuration value selecting CollectAll.
const CollectAllMarker = "*"

// DefaultInterval applies to monitors and counters that declare no interval.
const DefaultInterval = time.Hour

// TimestampField is the key holding the flush time in persisted measures. No
// monitor hook may use it.
const TimestampField = "timestamp"

// Probe is a validated probe definition.
type Probe struct {
	ID   string `json:"id"`
	Type Type   `json:"type"`

	// Monitor
	Hooks []string `json:"hooks,omitempty"`

	// Counter
	Increasers []string `json:"increasers,omitempty"`
	Decreasers []string `json:"decreasers,omitempty"`

	// Watcher
	Index       string      `json:"index,omitempty"`
	Collection  string      `json:"collection,omitempty"`
	Filter      any         `json:"filter,omitempty"` // expression string or query object, read by the filter engine
	CollectMode CollectMode `json:"collect_mode"`
	Collects    []string    `json:"collects,omitempty"`

	// Interval is the flush period. NoInterval on a watcher means every
	// matching document is flushed immediately.
	Interval time.Duration `json:"interval"`
}

// Immediate reports whether the probe flushes after every qualifying event.
func (p *Probe) Immediate() bool {
	return p.Type == TypeWatcher && p.Interval == NoInterval
}

// Collecting reports whether the probe stores document content.
func (p *Probe) Collecting() bool {
	return p.Type == TypeWatcher && p.CollectMode != CollectNone
}

// PluginConfig is the validated plugin configuration.
type PluginConfig struct {
	Databases    []string
	StorageIndex string
	Probes       []*Probe

	// Rejected holds the probes dropped during validation.
	Rejected []*DefinitionError
}

// Registry is the set of active probes for one initialization.
type Registry struct {
	probes map[string]*Probe
	ids    []string
	dummy  bool
}

// NewRegistry builds a registry. The registry is in dummy mode when it holds
// no probe or when forceDummy is set.
func NewRegistry(probes []*Probe, forceDummy bool) *Registry {
	r := &Registry{probes: make(map[string]*Probe, len(probes))}
	for _, p := range probes {
		r.probes[p.ID] = p
		r.ids = append(r.ids, p.ID)
	}
	sort.Strings(r.ids)
	r.dummy = forceDummy || len(r.probes) == 0
	return r
}

// Dummy reports whether the registry runs in dummy mode.
func (r *Registry) Dummy() bool {
	return r.dummy
}

// Len returns the number of active probes.
func (r *Registry) Len() int {
	return len(r.ids)
}

// Get returns the probe with the given ID.
func (r *Registry) Get(id string) (*Probe, bool) {
	p, ok := r.probes[id]
	return p, ok
}

// All returns the active probes ordered by ID.
func (r *Registry) All() []*Probe {
	out := make([]*Probe, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.probes[id])
	}
	return out
}

// OfType returns the active probes of type t ordered by ID.
func (r *Registry) OfType(t Type) []*Probe {
	var out []*Probe
	for _, id := range r.ids {
		if p := r.probes[id]; p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

// Remove deactivates a probe. Used when a later startup step rejects it.
func (r *Registry) Remove(id string) {
	if _, ok := r.probes[id]; !ok {
		return
	}
	delete(r.probes, id)
	for i, existing := range r.ids {
		if existing == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			break
		}
	}
}
