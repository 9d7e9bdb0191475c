package analysis

import (
	"errors"
	"fmt"

	"github.com/davidfague/bmtool/internal/network"
)

// ErrConfiguration is matched by every *ConfigurationError.
var ErrConfiguration = network.ErrConfiguration

// ErrNoNodes is returned when a selection resolves to no nodes at all.
var ErrNoNodes = errors.New("analysis: no nodes selected")

// ConfigurationError reports a missing or invalid request parameter.
type ConfigurationError = network.ConfigurationError

func invalidMethod(field, method string, allowed ...string) error {
	return &ConfigurationError{
		Field:  field,
		Reason: fmt.Sprintf("unknown %s %q, want one of %v", field, method, allowed),
	}
}
