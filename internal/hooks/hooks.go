// Package hooks builds the event routing table used to dispatch host events
// to probe handlers.
package hooks

import (
	"sort"

	"github.com/probeline/probeline/internal/probe"
)

// Document lifecycle events observed by every watcher probe.
const (
	BeforeCreate          = "data:beforeCreate"
	BeforeCreateOrReplace = "data:beforeCreateOrReplace"
	BeforeReplace         = "data:beforeReplace"
	BeforeUpdate          = "data:beforeUpdate"
	BeforePublish         = "data:beforePublish"
)

// WatcherEvents is the fixed subscription set of watcher probes.
var WatcherEvents = []string{
	BeforeCreate,
	BeforeCreateOrReplace,
	BeforeReplace,
	BeforeUpdate,
	BeforePublish,
}

// Table maps event names to the probe types subscribed to them.
type Table struct {
	routes map[string]map[probe.Type]struct{}
}

// Build creates the routing table for the given active probes.
func Build(probes []*probe.Probe) *Table {
	t := &Table{routes: make(map[string]map[probe.Type]struct{})}
	for _, p := range probes {
		for _, event := range Subscriptions(p) {
			t.add(event, p.Type)
		}
	}
	return t
}

func (t *Table) add(event string, typ probe.Type) {
	set, ok := t.routes[event]
	if !ok {
		set = make(map[probe.Type]struct{}, 1)
		t.routes[event] = set
	}
	set[typ] = struct{}{}
}

// Route returns the probe types subscribed to event, in a stable order.
func (t *Table) Route(event string) []probe.Type {
	set := t.routes[event]
	if len(set) == 0 {
		return nil
	}
	out := make([]probe.Type, 0, len(set))
	for _, typ := range probe.Types {
		if _, ok := set[typ]; ok {
			out = append(out, typ)
		}
	}
	return out
}

// Has reports whether probes of type typ listen to event.
func (t *Table) Has(event string, typ probe.Type) bool {
	_, ok := t.routes[event][typ]
	return ok
}

// Events returns every routed event name, sorted.
func (t *Table) Events() []string {
	out := make([]string, 0, len(t.routes))
	for event := range t.routes {
		out = append(out, event)
	}
	sort.Strings(out)
	return out
}

// Subscriptions returns the events a single probe listens to.
func Subscriptions(p *probe.Probe) []string {
	switch p.Type {
	case probe.TypeMonitor:
		return p.Hooks
	case probe.TypeCounter:
		out := make([]string, 0, len(p.Increasers)+len(p.Decreasers))
		out = append(out, p.Increasers...)
		out = append(out, p.Decreasers...)
		return out
	case probe.TypeWatcher:
		return WatcherEvents
	}
	return nil
}

// Subscribed reports whether probe p listens to event.
func Subscribed(p *probe.Probe, event string) bool {
	for _, e := range Subscriptions(p) {
		if e == event {
			return true
		}
	}
	return false
}
