package probe

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func baseConfig(probes map[string]any) map[string]any {
	raw := map[string]any{
		KeyDatabases:    []any{"foo"},
		KeyStorageIndex: "bar",
	}
	if probes != nil {
		raw[KeyProbes] = probes
	}
	return raw
}

func findProbe(cfg *PluginConfig, id string) *Probe {
	for _, p := range cfg.Probes {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func TestValidate_FatalErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    map[string]any
		reason string
	}{
		{"nil config", nil, "no configuration provided"},
		{"empty config", map[string]any{}, "no configuration provided"},
		{"databases missing", map[string]any{"foo": "bar"}, "no target database set"},
		{"databases as string", map[string]any{KeyDatabases: "foo:bar"}, "no target database set"},
		{"databases empty", map[string]any{KeyDatabases: []any{}}, "no target database set"},
		{"databases wrong item", map[string]any{KeyDatabases: []any{42}}, "no target database set"},
		{"storage index missing", map[string]any{KeyDatabases: []any{"foo:bar"}}, "no storage index"},
		{"storage index number", map[string]any{KeyDatabases: []any{"foo:bar"}, KeyStorageIndex: 1}, "no storage index"},
		{"storage index empty", map[string]any{KeyDatabases: []any{"foo:bar"}, KeyStorageIndex: ""}, "no storage index"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Validate(tt.raw)
			if err == nil {
				t.Fatalf("expected error, got config %+v", cfg)
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("error %q does not mention %q", err, tt.reason)
			}
		})
	}
}

func TestValidate_NoProbes(t *testing.T) {
	t.Parallel()

	for _, probes := range []map[string]any{nil, {}} {
		cfg, err := Validate(baseConfig(probes))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Probes) != 0 {
			t.Errorf("expected no probes, got %d", len(cfg.Probes))
		}
		if !NewRegistry(cfg.Probes, false).Dummy() {
			t.Error("expected dummy registry")
		}
	}
}

func TestValidate_RejectsUnknownTypes(t *testing.T) {
	t.Parallel()

	cfg, err := Validate(baseConfig(map[string]any{
		"badProbe": map[string]any{
			"index":      "foo",
			"collection": "bar",
			"hooks":      []any{"foo:bar", "data:beforePublish"},
		},
		"weird": map[string]any{"type": "gauge"},
		"ok":    map[string]any{"type": "monitor", "hooks": []any{"foo:bar"}},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if findProbe(cfg, "badProbe") != nil || findProbe(cfg, "weird") != nil {
		t.Error("probes with missing or unknown type must be dropped")
	}
	if findProbe(cfg, "ok") == nil {
		t.Error("valid sibling probe must survive")
	}
	if len(cfg.Rejected) != 2 {
		t.Errorf("expected 2 rejected probes, got %d", len(cfg.Rejected))
	}
}

func TestValidate_Watchers(t *testing.T) {
	t.Parallel()

	filter := map[string]any{"term": map[string]any{"foo": "bar"}}
	cfg, err := Validate(baseConfig(map[string]any{
		"expr": map[string]any{
			"type": "watcher", "index": "foo", "collection": "bar",
			"filter": "  foo == 'bar' ", "collects": 0,
		},
		"foo": map[string]any{
			"type": "watcher", "index": "foo", "collection": "bar",
			"filter": filter, "collects": "*", "interval": "none",
		},
		"bar": map[string]any{
			"type": "watcher", "index": "foo", "collection": "bar",
			"filter": filter, "interval": "1m",
		},
		"baz": map[string]any{
			"type": "watcher", "index": "foo", "collection": "bar",
			"collects": []any{"foo.bar", "bar.baz", "baz.qux"},
		},
		"qux": map[string]any{
			"type": "watcher", "index": "foo", "collection": "bar",
			"collects": []any{},
		},
		"badProbe1": map[string]any{"type": "watcher", "index": nil, "collection": "bar", "collects": "*"},
		"badProbe2": map[string]any{"type": "watcher", "index": "foo", "collection": nil, "collects": "*"},
		"badProbe3": map[string]any{"type": "watcher", "index": "foo", "collection": "bar", "collects": "foobar"},
		"badProbe4": map[string]any{"type": "watcher", "index": "foo", "collection": "bar", "collects": 123},
		"badProbe5": map[string]any{"type": "watcher", "index": "foo", "collection": "bar", "collects": map[string]any{"foo": "bar"}},
		"badProbe6": map[string]any{"type": "watcher", "index": "foo", "collection": "bar", "interval": "soon"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	foo := findProbe(cfg, "foo")
	if foo == nil || foo.Interval != NoInterval || foo.CollectMode != CollectAll || !foo.Immediate() {
		t.Errorf("unexpected foo probe: %+v", foo)
	}

	bar := findProbe(cfg, "bar")
	if bar == nil || bar.Interval != time.Minute || bar.CollectMode != CollectNone || !reflect.DeepEqual(bar.Filter, filter) {
		t.Errorf("unexpected bar probe: %+v", bar)
	}

	baz := findProbe(cfg, "baz")
	if baz == nil || baz.Filter != nil || baz.CollectMode != CollectPaths || len(baz.Collects) != 3 {
		t.Errorf("unexpected baz probe: %+v", baz)
	}

	expr := findProbe(cfg, "expr")
	if expr == nil || expr.Filter != "foo == 'bar'" || expr.CollectMode != CollectNone {
		t.Errorf("unexpected expr probe: %+v", expr)
	}

	qux := findProbe(cfg, "qux")
	if qux == nil || qux.CollectMode != CollectNone || qux.Collects != nil {
		t.Errorf("unexpected qux probe: %+v", qux)
	}

	for _, id := range []string{"badProbe1", "badProbe2", "badProbe3", "badProbe4", "badProbe5", "badProbe6"} {
		if findProbe(cfg, id) != nil {
			t.Errorf("%s should have been rejected", id)
		}
	}
	if len(cfg.Rejected) != 6 {
		t.Errorf("expected 6 rejected probes, got %d", len(cfg.Rejected))
	}
}

func TestValidate_DefaultIntervals(t *testing.T) {
	t.Parallel()

	cfg, err := Validate(baseConfig(map[string]any{
		"mon":  map[string]any{"type": "monitor", "hooks": []any{"a", "a", "b"}},
		"cnt":  map[string]any{"type": "counter", "increasers": []any{"a"}, "decreasers": []any{"b"}, "interval": "none"},
		"fast": map[string]any{"type": "monitor", "hooks": []any{"a"}, "interval": 1000},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mon := findProbe(cfg, "mon")
	if mon.Interval != DefaultInterval {
		t.Errorf("monitor interval = %v, want %v", mon.Interval, DefaultInterval)
	}
	if len(mon.Hooks) != 2 {
		t.Errorf("expected hooks to be deduplicated, got %v", mon.Hooks)
	}
	if got := findProbe(cfg, "cnt").Interval; got != DefaultInterval {
		t.Errorf("counter interval = %v, want %v", got, DefaultInterval)
	}
	if got := findProbe(cfg, "fast").Interval; got != time.Second {
		t.Errorf("numeric interval = %v, want 1s", got)
	}
}

func TestValidate_IntervalOutOfRange(t *testing.T) {
	t.Parallel()

	cfg, err := Validate(baseConfig(map[string]any{
		"years":   map[string]any{"type": "monitor", "hooks": []any{"a"}, "interval": "300y"},
		"weeks":   map[string]any{"type": "counter", "increasers": []any{"a"}, "interval": "20000w"},
		"numeric": map[string]any{"type": "monitor", "hooks": []any{"a"}, "interval": 1e300},
		"longest": map[string]any{"type": "monitor", "hooks": []any{"a"}, "interval": "200y"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range []string{"years", "weeks", "numeric"} {
		if findProbe(cfg, id) != nil {
			t.Errorf("%s: overflowing interval should reject the probe", id)
		}
	}
	if len(cfg.Rejected) != 3 {
		t.Errorf("expected 3 rejected probes, got %d", len(cfg.Rejected))
	}
	for _, r := range cfg.Rejected {
		if !strings.Contains(r.Error(), "out of range") {
			t.Errorf("unexpected rejection: %v", r)
		}
	}

	if p := findProbe(cfg, "longest"); p == nil || p.Interval <= 0 {
		t.Errorf("200y fits a duration and should be kept: %+v", p)
	}
}

func TestValidate_ReservedHook(t *testing.T) {
	t.Parallel()

	cfg, err := Validate(baseConfig(map[string]any{
		"clash": map[string]any{"type": "monitor", "hooks": []any{"a", TimestampField}},
		"count": map[string]any{"type": "counter", "increasers": []any{TimestampField}},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if findProbe(cfg, "clash") != nil || len(cfg.Rejected) != 1 {
		t.Errorf("monitor hook %q must be rejected, rejected = %v", TimestampField, cfg.Rejected)
	}
	if findProbe(cfg, "count") == nil {
		t.Error("counter hooks are not persisted as fields and may use any name")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	probes := []*Probe{
		{ID: "b", Type: TypeCounter},
		{ID: "a", Type: TypeMonitor},
		{ID: "c", Type: TypeCounter},
	}

	r := NewRegistry(probes, false)
	if r.Dummy() {
		t.Fatal("registry with probes should not be dummy")
	}
	if got := r.All(); got[0].ID != "a" || got[2].ID != "c" {
		t.Errorf("All() not sorted: %v", got)
	}
	if got := r.OfType(TypeCounter); len(got) != 2 {
		t.Errorf("OfType(counter) = %d probes, want 2", len(got))
	}

	r.Remove("b")
	if _, ok := r.Get("b"); ok || r.Len() != 2 {
		t.Error("Remove did not deactivate probe")
	}

	if !NewRegistry(probes, true).Dummy() {
		t.Error("forced dummy registry should be dummy")
	}
}
