package probe

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every fatal configuration error.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a plugin configuration that cannot be started.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) hold.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// DefinitionError reports a probe dropped during validation.
type DefinitionError struct {
	ProbeID string
	Reason  string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("probe %q: %s", e.ProbeID, e.Reason)
}

func configError(reason string) error {
	return &ConfigurationError{Reason: reason}
}

func definitionError(id, format string, args ...any) *DefinitionError {
	return &DefinitionError{ProbeID: id, Reason: fmt.Sprintf(format, args...)}
}
