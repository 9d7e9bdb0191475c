package network

import "errors"

// ErrConfiguration is matched by every *ConfigurationError.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigurationError reports a missing or invalid parameter. It is raised
// before any table is read.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// Is reports ErrConfiguration as a match.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ErrNoConfig is returned when no simulation config path is given.
var ErrNoConfig = &ConfigurationError{Field: "config", Reason: "config not defined"}
