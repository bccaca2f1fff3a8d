/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"fmt"
	"sync"

	"github.com/acronis/go-svckit/log"
)

// ManagerOpts represents options for ServiceManager.
type ManagerOpts struct {
	// StreamBufferSize bounds the per-stream payload queue.
	// Defaults to DefaultStreamBufferSize.
	StreamBufferSize int
}

// DefaultStreamBufferSize is the default per-stream payload queue capacity.
const DefaultStreamBufferSize = 64

// ServiceManager is a named registry of services with per-name reference
// counts. A service is started on its first reference and stopped on its
// last release, so many independent consumers can share one running worker.
//
// Registry and refcount mutations form a single critical section: the
// refcount change and the start-on-first/stop-on-last decision are atomic
// together.
type ServiceManager struct {
	logger log.FieldLogger
	opts   ManagerOpts

	mu    sync.Mutex
	svcs  map[string]*Service
	refs  map[string]int
	order []string // registration order, used for the global shutdown
}

// NewServiceManager creates a new ServiceManager.
func NewServiceManager(logger log.FieldLogger) *ServiceManager {
	return NewServiceManagerWithOpts(logger, ManagerOpts{})
}

// NewServiceManagerWithOpts is a more configurable version of NewServiceManager.
func NewServiceManagerWithOpts(logger log.FieldLogger, opts ManagerOpts) *ServiceManager {
	if opts.StreamBufferSize <= 0 {
		opts.StreamBufferSize = DefaultStreamBufferSize
	}
	return &ServiceManager{
		logger: log.NewPrefixedLogger(logger, "service manager: "),
		opts:   opts,
		svcs:   make(map[string]*Service),
		refs:   make(map[string]int),
	}
}

// Register adds a service to the registry under the given name with a zero
// reference count. It fails if the name is already taken.
func (m *ServiceManager) Register(name string, svc *Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.svcs[name]; ok {
		return fmt.Errorf("register service %q: %w", name, ErrAlreadyRegistered)
	}
	m.svcs[name] = svc
	m.refs[name] = 0
	m.order = append(m.order, name)
	return nil
}

// Unregister removes a service from the registry.
// It fails if the name is unknown or the service still has references.
func (m *ServiceManager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.svcs[name]; !ok {
		return fmt.Errorf("unregister service %q: %w", name, ErrUnknownService)
	}
	if m.refs[name] != 0 {
		return fmt.Errorf("unregister service %q with %d reference(s): %w", name, m.refs[name], ErrServiceInUse)
	}
	delete(m.svcs, name)
	delete(m.refs, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Has reports whether a service with the given name is registered.
func (m *ServiceManager) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.svcs[name]
	return ok
}

// Names returns the registered service names in registration order.
func (m *ServiceManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.order...)
}

// Get takes a reference on the named service, starting it if this is the
// first one. If ready is true, Get additionally waits for the service to
// become ready; on a readiness failure the reference just taken is released
// before the error is returned, so refcounts stay symmetric.
func (m *ServiceManager) Get(name string, ready bool) (*Service, error) {
	m.mu.Lock()
	svc, ok := m.svcs[name]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("get service %q: %w", name, ErrUnknownService)
	}
	m.refs[name]++
	first := m.refs[name] == 1
	m.mu.Unlock()

	if first {
		svc.Start()
	}

	if ready {
		if err := svc.AwaitReady(); err != nil {
			if putErr := m.Put(name); putErr != nil {
				m.logger.Error("failed to release reference after readiness failure",
					log.String("service", name), log.Error(putErr))
			}
			return nil, err
		}
	}

	return svc, nil
}

// Put releases one reference on the named service, stopping it when the last
// reference is gone. It does not wait for the stop to complete.
func (m *ServiceManager) Put(name string) error {
	m.mu.Lock()
	svc, ok := m.svcs[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("put service %q: %w", name, ErrUnknownService)
	}
	if m.refs[name] == 0 {
		m.mu.Unlock()
		return fmt.Errorf("put service %q: %w", name, ErrNoReference)
	}
	m.refs[name]--
	last := m.refs[name] == 0
	m.mu.Unlock()

	if last {
		svc.Stop()
	}
	return nil
}

// Borrow acquires the named service, waits for its readiness, invokes fn with
// it and releases the reference on all exit paths, including a panic in fn.
func (m *ServiceManager) Borrow(name string, fn func(svc *Service) error) error {
	svc, err := m.Get(name, true)
	if err != nil {
		return err
	}
	defer func() {
		if putErr := m.Put(name); putErr != nil {
			m.logger.Error("failed to release borrowed service",
				log.String("service", name), log.Error(putErr))
		}
	}()
	return fn(svc)
}

// RestartAll stops every registered service, waits for all of them to stop,
// and starts again only those that were wanted. Best-effort: readiness
// failures during the restart are logged, not returned.
func (m *ServiceManager) RestartAll(awaitReady bool) {
	m.logger.Info("restarting all services")

	svcs := m.snapshot()
	wanted := make(map[string]bool, len(svcs))

	for _, e := range svcs {
		wanted[e.name] = e.svc.Wanted()
		e.svc.Stop()
	}

	for _, e := range svcs {
		e.svc.AwaitStopped()
	}

	for _, e := range svcs {
		if !wanted[e.name] {
			continue
		}

		e.svc.Start()

		if !awaitReady {
			continue
		}

		if err := e.svc.AwaitReady(); err != nil {
			// restart is best-effort over the whole batch
			m.logger.Warn("service did not become ready during restart",
				log.String("service", e.name), log.Error(err))
		}
	}
}

// Dump logs name, refcount, liveness, state and demand flag for every
// registered service. Diagnostic only, no side effects.
func (m *ServiceManager) Dump() {
	svcs := m.snapshot()

	m.logger.Debug("service state")
	for _, e := range svcs {
		m.logger.Debugf("  [%4d] %-20s running=%t state=%s wanted=%t",
			e.refs, e.name, e.svc.IsAlive(), e.svc.State(), e.svc.Wanted())
	}
}

// Shutdown stops and joins every registered service. The embedding process
// must call it exactly once during its own orderly termination.
//
// The fixed global order — stop all, await all stopped, then join all, each
// pass in registration order — guarantees no service is joined before every
// service has at least been asked to stop, so a service blocking on another
// not-yet-stopped dependency cannot stall the shutdown.
func (m *ServiceManager) Shutdown() {
	m.logger.Debug("shutting down services")
	m.Dump()

	svcs := m.snapshot()

	for _, e := range svcs {
		if e.svc.State() != Stopped {
			e.svc.Stop()
		}
	}

	m.Dump()

	m.logger.Debug("waiting for services to stop")
	for _, e := range svcs {
		m.logger.Debugf("waiting for %s", e.name)
		e.svc.AwaitStopped()
	}

	m.logger.Debug("cleaning up services")
	m.Dump()
	for _, e := range svcs {
		e.svc.Shutdown()
	}

	m.logger.Info("shutdown complete")
}

type managerEntry struct {
	name string
	svc  *Service
	refs int
}

// snapshot returns the registered services in registration order.
func (m *ServiceManager) snapshot() []managerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]managerEntry, 0, len(m.order))
	for _, name := range m.order {
		entries = append(entries, managerEntry{name: name, svc: m.svcs[name], refs: m.refs[name]})
	}
	return entries
}
