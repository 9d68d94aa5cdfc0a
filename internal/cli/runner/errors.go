// Package runner provides an interceptor-based command execution framework for CLI commands.
// Interceptors wrap a handler the way HTTP middleware wraps a handler, giving every
// command the same logging, configuration and log-file semantics.
package runner

import "errors"

// Standard errors returned by interceptors
var (
	// ErrNotInitialized is returned when no configuration could be loaded
	ErrNotInitialized = errors.New("no configuration loaded")
)
