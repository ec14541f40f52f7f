package events

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestValidateEventPayload(t *testing.T) {
	valid := EventPayload{
		Event:      "data:afterCreate",
		Index:      "app",
		Collection: "users",
		ID:         "u1",
		Body:       json.RawMessage(`{"name":"ada"}`),
		EmittedAt:  1700000000000,
	}
	if err := ValidateEventPayload(valid); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	cases := []struct {
		name    string
		payload EventPayload
	}{
		{"missing_event", EventPayload{Index: "app"}},
		{"event_without_scope", EventPayload{Event: "afterCreate"}},
		{"event_with_spaces", EventPayload{Event: "data:after create"}},
		{"event_too_long", EventPayload{Event: "data:" + strings.Repeat("a", 200)}},
		{"index_too_long", EventPayload{Event: "data:afterCreate", Index: strings.Repeat("i", 129)}},
		{"id_too_long", EventPayload{Event: "data:afterCreate", ID: strings.Repeat("x", 513)}},
		{"body_not_object", EventPayload{Event: "data:afterCreate", Body: json.RawMessage(`[1,2]`)}},
		{"negative_timestamp", EventPayload{Event: "data:afterCreate", EmittedAt: -1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateEventPayload(tc.payload); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestValidateHook(t *testing.T) {
	t.Parallel()

	for _, hook := range []string{"data:afterCreate", "core:kuzzleStart", "document:beforeDelete", "a:b:c", "plugin-x:on_event"} {
		if err := ValidateHook(hook); err != nil {
			t.Errorf("ValidateHook(%q) = %v, want nil", hook, err)
		}
	}

	for _, hook := range []string{"", "data", ":afterCreate", "data:", "data:after/Create"} {
		if err := ValidateHook(hook); !errors.Is(err, ErrInvalidHook) {
			t.Errorf("ValidateHook(%q) = %v, want ErrInvalidHook", hook, err)
		}
	}
}

func TestEventPayload_ToEvent(t *testing.T) {
	t.Parallel()

	payload := EventPayload{
		Event:      "data:afterCreate",
		Index:      "app",
		Collection: "users",
		ID:         "u1",
		Body:       json.RawMessage(`{"name":"ada","address":{"city":"london"}}`),
	}

	ev, err := payload.ToEvent()
	if err != nil {
		t.Fatalf("ToEvent() error = %v", err)
	}
	if ev.Name != "data:afterCreate" || ev.Index != "app" || ev.Collection != "users" {
		t.Errorf("unexpected routing fields: %+v", ev)
	}
	if ev.Document.ID != "u1" || ev.Document.Body["name"] != "ada" {
		t.Errorf("unexpected document: %+v", ev.Document)
	}
	address, ok := ev.Document.Body["address"].(map[string]any)
	if !ok || address["city"] != "london" {
		t.Errorf("nested body not decoded: %+v", ev.Document.Body)
	}
}

func TestEventPayload_ToEventWithoutBody(t *testing.T) {
	t.Parallel()

	for _, body := range []json.RawMessage{nil, json.RawMessage("null")} {
		ev, err := EventPayload{Event: "core:kuzzleStart", Body: body}.ToEvent()
		if err != nil {
			t.Fatalf("ToEvent() error = %v", err)
		}
		if ev.Document.Body == nil || len(ev.Document.Body) != 0 {
			t.Errorf("expected empty body, got %#v", ev.Document.Body)
		}
	}
}
