package plugin

import (
	"errors"
	"fmt"
)

// Sentinel errors for plugin conditions.
var (
	// ErrNotBound is returned by hook RPCs that arrive before Bind.
	ErrNotBound = errors.New("plugin not bound to a host")

	// ErrCircuitOpen is returned when the plugin's circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrInvalidEnvelope is returned when a mail record cannot be decoded.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrInvalidParamQuery is returned for a malformed parameter lookup.
	ErrInvalidParamQuery = errors.New("invalid parameter query")
)

// LoadError represents an error during plugin loading.
type LoadError struct {
	// Path is the path to the plugin that failed to load.
	Path string

	// Reason describes why loading failed.
	Reason string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to load plugin %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to load plugin %q: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError creates a new load error.
func NewLoadError(path, reason string, err error) *LoadError {
	return &LoadError{
		Path:   path,
		Reason: reason,
		Err:    err,
	}
}

// HookError wraps a failed remote hook call.
type HookError struct {
	// Plugin is the manifest ID of the plugin.
	Plugin string

	// Hook is the hook that failed.
	Hook string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return fmt.Sprintf("plugin %s: %s: %v", e.Plugin, e.Hook, e.Err)
}

// Unwrap returns the underlying error.
func (e *HookError) Unwrap() error {
	return e.Err
}

// IsCircuitOpen checks if the error is due to an open circuit breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
