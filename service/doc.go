/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package service provides a supervisor for long-lived background workers.
//
// Each Service runs one worker as an autonomous state machine in its own
// goroutine, with demand-driven start/stop, retry with backoff on failure,
// a graceful idle period before stopping and an observer interface for
// pushing events to consumers. ServiceManager is a named, reference-counted
// registry of services that starts a service on its first reference, stops
// it on its last release and performs an ordered global shutdown when the
// process terminates.
package service
