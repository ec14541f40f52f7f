package events

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
)

const (
	maxHookLength       = 128
	maxNameLength       = 128
	maxDocumentIDLength = 512

	// MaxBodySize bounds the encoded document body of a single event.
	MaxBodySize = 256 * 1024
)

// hookPattern matches hook names such as "data:afterCreate".
var hookPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(:[A-Za-z0-9_-]+)+$`)

// ErrInvalidHook is returned for malformed hook names.
var ErrInvalidHook = errors.New("invalid hook name")

// ValidateHook checks a hook name.
func ValidateHook(hook string) error {
	if hook == "" {
		return fmt.Errorf("%w: event is required", ErrInvalidHook)
	}
	if len(hook) > maxHookLength || !hookPattern.MatchString(hook) {
		return fmt.Errorf("%w: %q", ErrInvalidHook, hook)
	}
	return nil
}

// ValidateEventPayload validates event payload fields.
func ValidateEventPayload(payload EventPayload) error {
	if err := ValidateHook(payload.Event); err != nil {
		return err
	}
	if len(payload.Index) > maxNameLength {
		return fmt.Errorf("index too long")
	}
	if len(payload.Collection) > maxNameLength {
		return fmt.Errorf("collection too long")
	}
	if len(payload.ID) > maxDocumentIDLength {
		return fmt.Errorf("id too long")
	}
	if len(payload.Body) > MaxBodySize {
		return fmt.Errorf("body exceeds %d bytes", MaxBodySize)
	}
	if body := bytes.TrimSpace(payload.Body); len(body) > 0 && body[0] != '{' && !bytes.Equal(body, []byte("null")) {
		return fmt.Errorf("body must be a JSON object")
	}
	if payload.EmittedAt < 0 {
		return fmt.Errorf("t must not be negative")
	}
	return nil
}
