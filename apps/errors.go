package apps

import (
	"errors"
	"fmt"
)

// ErrUnknownApplication is returned for application names that were not declared.
var ErrUnknownApplication = errors.New("unknown application")

// NotInitializedError is returned when a surface or API handle is requested for an
// application that has not been initialized in the current run.
type NotInitializedError struct {
	Application string
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("application %q is not initialized", e.Application)
}

// ConfigurationError is returned when an application's configuration cannot be
// resolved or fails validation.
type ConfigurationError struct {
	Application string
	Err         error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for application %q: %v", e.Application, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
