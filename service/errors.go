/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
)

// ErrStopped is returned to callers waiting for readiness when the service
// will not reach the Running state (the process is shutting down, or demand
// was withdrawn while waiting).
var ErrStopped = errors.New("service stopped")

// ErrRestartRequested is not a failure. A worker returns it (possibly wrapped)
// from its Run hook to request a deliberate stop/start cycle.
var ErrRestartRequested = errors.New("service restart requested")

// Errors reported by ServiceManager on registry misuse.
var (
	// ErrUnknownService is returned when the requested name is not registered.
	ErrUnknownService = errors.New("unknown service")

	// ErrAlreadyRegistered is returned on an attempt to register a name twice.
	ErrAlreadyRegistered = errors.New("service already registered")

	// ErrServiceInUse is returned on an attempt to unregister a service
	// with outstanding references.
	ErrServiceInUse = errors.New("service has outstanding references")

	// ErrNoReference is returned on an attempt to release a reference
	// that was never taken.
	ErrNoReference = errors.New("service has no outstanding references")
)

// isTimeout reports whether err belongs to the timeout class of errors.
// Start attempts failing with such errors are retried without logging.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
