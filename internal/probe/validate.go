package probe

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Configuration keys.
const (
	KeyDatabases    = "databases"
	KeyStorageIndex = "storageIndex"
	KeyProbes       = "probes"
)

// definition mirrors the configuration of a single probe before validation.
type definition struct {
	Type       string   `mapstructure:"type"`
	Hooks      []string `mapstructure:"hooks"`
	Increasers []string `mapstructure:"increasers"`
	Decreasers []string `mapstructure:"decreasers"`
	Index      string   `mapstructure:"index"`
	Collection string   `mapstructure:"collection"`
	Filter     any      `mapstructure:"filter"`
	Collects   any      `mapstructure:"collects"`
	Interval   any      `mapstructure:"interval"`
}

// Validate checks a raw plugin configuration, typically decoded from YAML or
// JSON. Missing or malformed databases and storageIndex entries are fatal and
// returned as a *ConfigurationError. Invalid probes are not: they are left out
// of the result and listed in PluginConfig.Rejected.
func Validate(raw map[string]any) (*PluginConfig, error) {
	if len(raw) == 0 {
		return nil, configError("no configuration provided")
	}

	databases, ok := stringList(raw[KeyDatabases])
	if !ok || len(databases) == 0 {
		return nil, configError("no target database set")
	}
	for _, db := range databases {
		if strings.TrimSpace(db) == "" {
			return nil, configError("no target database set")
		}
	}

	storageIndex, ok := raw[KeyStorageIndex].(string)
	if !ok || storageIndex == "" {
		return nil, configError("no storage index")
	}

	cfg := &PluginConfig{
		Databases:    databases,
		StorageIndex: storageIndex,
	}

	rawProbes, err := probeMap(raw[KeyProbes])
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rawProbes))
	for id := range rawProbes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p, derr := parseProbe(id, rawProbes[id])
		if derr != nil {
			cfg.Rejected = append(cfg.Rejected, derr)
			continue
		}
		cfg.Probes = append(cfg.Probes, p)
	}

	return cfg, nil
}

func probeMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	default:
		return nil, configError("probes must be a mapping of probe definitions")
	}
}

func parseProbe(id string, v any) (*Probe, *DefinitionError) {
	if id == "" {
		return nil, definitionError(id, "empty probe id")
	}

	var def definition
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &def,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, definitionError(id, "decoder: %v", err)
	}
	if err := decoder.Decode(v); err != nil {
		return nil, definitionError(id, "malformed definition: %v", err)
	}

	p := &Probe{ID: id, Type: Type(def.Type)}

	switch p.Type {
	case TypeMonitor:
		p.Hooks = dedupe(def.Hooks)
		for _, hook := range p.Hooks {
			if hook == TimestampField {
				return nil, definitionError(id, "hook %q collides with the document timestamp", hook)
			}
		}
	case TypeCounter:
		p.Increasers = dedupe(def.Increasers)
		p.Decreasers = dedupe(def.Decreasers)
	case TypeWatcher:
		if derr := parseWatcher(p, &def); derr != nil {
			return nil, derr
		}
	case "":
		return nil, definitionError(id, "no type defined")
	default:
		return nil, definitionError(id, "unknown type %q", def.Type)
	}

	interval, derr := parseProbeInterval(id, def.Interval)
	if derr != nil {
		return nil, derr
	}
	p.Interval = interval
	if p.Type != TypeWatcher && p.Interval == NoInterval {
		p.Interval = DefaultInterval
	}

	return p, nil
}

func parseWatcher(p *Probe, def *definition) *DefinitionError {
	if def.Index == "" {
		return definitionError(p.ID, "watcher requires an index")
	}
	if def.Collection == "" {
		return definitionError(p.ID, "watcher requires a collection")
	}
	p.Index = def.Index
	p.Collection = def.Collection

	switch f := def.Filter.(type) {
	case nil:
	case string:
		if f = strings.TrimSpace(f); f != "" {
			p.Filter = f
		}
	case map[string]any:
		if len(f) > 0 {
			p.Filter = f
		}
	default:
		p.Filter = f
	}

	switch c := def.Collects.(type) {
	case nil:
		p.CollectMode = CollectNone
	case string:
		switch c {
		case "":
			p.CollectMode = CollectNone
		case CollectAllMarker:
			p.CollectMode = CollectAll
		default:
			return definitionError(p.ID, "invalid collects value %q", c)
		}
	case []any:
		paths := make([]string, 0, len(c))
		for _, item := range c {
			s, ok := item.(string)
			if !ok || s == "" {
				return definitionError(p.ID, "collects entries must be non-empty strings")
			}
			paths = append(paths, s)
		}
		p.Collects = dedupe(paths)
	case []string:
		for _, s := range c {
			if s == "" {
				return definitionError(p.ID, "collects entries must be non-empty strings")
			}
		}
		p.Collects = dedupe(c)
	case bool:
		if c {
			return definitionError(p.ID, "invalid collects value %v", c)
		}
	case int, int64, uint64, float64:
		if !isZero(c) {
			return definitionError(p.ID, "invalid collects value %v", c)
		}
	default:
		return definitionError(p.ID, "invalid collects value %v", c)
	}
	if p.CollectMode == CollectNone && len(p.Collects) > 0 {
		p.CollectMode = CollectPaths
	}

	return nil
}

func parseProbeInterval(id string, v any) (time.Duration, *DefinitionError) {
	switch iv := v.(type) {
	case nil:
		return NoInterval, nil
	case string:
		d, err := ParseInterval(iv)
		if err != nil {
			return 0, definitionError(id, "%v", err)
		}
		return d, nil
	case int:
		return millis(id, float64(iv))
	case int64:
		return millis(id, float64(iv))
	case uint64:
		return millis(id, float64(iv))
	case float64:
		return millis(id, iv)
	default:
		return 0, definitionError(id, "invalid interval %v", v)
	}
}

func millis(id string, n float64) (time.Duration, *DefinitionError) {
	if n < 0 {
		return 0, definitionError(id, "negative interval %v", n)
	}
	total := n * float64(time.Millisecond)
	if total >= math.MaxInt64 {
		return 0, definitionError(id, "interval %v out of range", n)
	}
	return time.Duration(total), nil
}

func isZero(v any) bool {
	switch n := v.(type) {
	case int:
		return n == 0
	case int64:
		return n == 0
	case uint64:
		return n == 0
	case float64:
		return n == 0
	default:
		return false
	}
}

func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
