/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import "time"

// Worker is the hook contract implemented by a concrete background worker.
// The supervisor loop drives these hooks; they are never called concurrently
// with each other for the same service.
//
// Any hook may return an ordinary error (converted into the supervisor's
// retry/backoff behavior), an error wrapping ErrStopped (a started-but-
// unavailable condition, logged at lower severity and retried the same way),
// or, from Run only, an error wrapping ErrRestartRequested.
type Worker interface {
	// Init is called exactly once, before the supervisor loop starts.
	// Returning an error aborts startup entirely: the service goroutine
	// exits and the service never becomes ready.
	Init() error

	// Start is called while the service transitions Starting → Running.
	Start() error

	// Run is called repeatedly while the service is Running and wanted.
	// It must not block materially longer than the given timeout; the
	// supervisor has no way to preempt a hung hook.
	Run(timeout time.Duration) error

	// Stop is called while the service transitions Stopping → Stopped.
	Stop() error
}

// NopWorker implements Worker with no-op hooks.
// Embed it to implement only the hooks a worker actually needs.
type NopWorker struct{}

// Init is a part of Worker interface.
func (NopWorker) Init() error { return nil }

// Start is a part of Worker interface.
func (NopWorker) Start() error { return nil }

// Run is a part of Worker interface.
func (NopWorker) Run(timeout time.Duration) error { return nil }

// Stop is a part of Worker interface.
func (NopWorker) Stop() error { return nil }
