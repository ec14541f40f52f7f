// Package document models the host documents carried by lifecycle events and
// projects them into the shapes watchers collect.
package document

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// IDField is the key under which a document identifier is merged into
// collected content.
const IDField = "_id"

// Document is a host document: an optional identifier and a JSON-like body.
type Document struct {
	ID   string         `json:"_id,omitempty"`
	Body map[string]any `json:"body"`
}

// Flatten returns a shallow copy of the body with the identifier, if any,
// merged in.
func (d Document) Flatten() map[string]any {
	out := make(map[string]any, len(d.Body)+1)
	for k, v := range d.Body {
		out[k] = v
	}
	if d.ID != "" {
		out[IDField] = d.ID
	}
	return out
}

// Project builds an object holding only the requested dotted paths of the
// body, rebuilt as nested objects, plus the identifier when the document has
// one. Paths missing from the body are omitted.
func Project(d Document, paths []string) (map[string]any, error) {
	raw, err := json.Marshal(d.Body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	out := "{}"
	for _, path := range paths {
		if path == "" {
			continue
		}
		escaped := escapePath(path)
		value := gjson.GetBytes(raw, escaped)
		if !value.Exists() {
			continue
		}
		out, err = sjson.SetRaw(out, escaped, value.Raw)
		if err != nil {
			return nil, fmt.Errorf("project %q: %w", path, err)
		}
	}
	if d.ID != "" {
		out, err = sjson.Set(out, IDField, d.ID)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", IDField, err)
		}
	}

	var projected map[string]any
	if err := json.Unmarshal([]byte(out), &projected); err != nil {
		return nil, fmt.Errorf("decode projection: %w", err)
	}
	return projected, nil
}

// escapePath escapes the gjson path syntax characters so that only dots act
// as separators.
func escapePath(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '*', '?', '|', '#', '@', '!', '=', '<', '>', '%', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
