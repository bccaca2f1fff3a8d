/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/xid"
	"go.uber.org/atomic"

	"github.com/acronis/go-svckit/log"
	"github.com/acronis/go-svckit/retry"
)

// Default scheduling delays of the supervisor loop.
const (
	DefaultStartRetryInterval  = time.Second
	DefaultRunInterval         = 100 * time.Millisecond
	DefaultIdleGrace           = 5 * time.Second
	DefaultStopRetryInterval   = time.Second
	DefaultRestartDelay        = time.Second
	DefaultStoppedPollInterval = 10 * time.Second
	DefaultReadyPollInterval   = 400 * time.Millisecond
)

// Timings holds the scheduling delays used by the supervisor loop.
// Zero fields are replaced with the package defaults.
type Timings struct {
	// StartRetryInterval is the delay between failed worker start attempts.
	StartRetryInterval time.Duration

	// RunInterval is the cadence of Run hook invocations and the timeout
	// passed to them.
	RunInterval time.Duration

	// IdleGrace is how long a no-longer-wanted service stays Idle before
	// the worker is actually stopped.
	IdleGrace time.Duration

	// StopRetryInterval is the delay between failed worker stop attempts.
	StopRetryInterval time.Duration

	// RestartDelay is the pause before stopping the worker after it
	// requested its own restart.
	RestartDelay time.Duration

	// StoppedPollInterval is the slow re-check cadence of a parked Stopped
	// service. Start requests wake the service immediately regardless.
	StoppedPollInterval time.Duration

	// ReadyPollInterval bounds the polling granularity of AwaitReady and
	// AwaitStopped.
	ReadyPollInterval time.Duration
}

// DefaultTimings returns the supervisor delays mandated by default.
func DefaultTimings() Timings {
	return Timings{
		StartRetryInterval:  DefaultStartRetryInterval,
		RunInterval:         DefaultRunInterval,
		IdleGrace:           DefaultIdleGrace,
		StopRetryInterval:   DefaultStopRetryInterval,
		RestartDelay:        DefaultRestartDelay,
		StoppedPollInterval: DefaultStoppedPollInterval,
		ReadyPollInterval:   DefaultReadyPollInterval,
	}
}

func (t Timings) withDefaults() Timings {
	def := DefaultTimings()
	if t.StartRetryInterval == 0 {
		t.StartRetryInterval = def.StartRetryInterval
	}
	if t.RunInterval == 0 {
		t.RunInterval = def.RunInterval
	}
	if t.IdleGrace == 0 {
		t.IdleGrace = def.IdleGrace
	}
	if t.StopRetryInterval == 0 {
		t.StopRetryInterval = def.StopRetryInterval
	}
	if t.RestartDelay == 0 {
		t.RestartDelay = def.RestartDelay
	}
	if t.StoppedPollInterval == 0 {
		t.StoppedPollInterval = def.StoppedPollInterval
	}
	if t.ReadyPollInterval == 0 {
		t.ReadyPollInterval = def.ReadyPollInterval
	}
	return t
}

// Opts represents options for Service.
type Opts struct {
	// Timings overrides the supervisor loop delays. Zero fields keep defaults.
	Timings Timings

	// StartRetryPolicy paces repeated worker start attempts.
	// Defaults to a constant backoff of Timings.StartRetryInterval.
	StartRetryPolicy retry.Policy

	// Metrics collects lifecycle metrics. Defaults to a no-op collector.
	Metrics MetricsCollector
}

// Service owns one worker's lifecycle: a dedicated goroutine runs a
// five-state loop (Starting, Running, Idle, Stopping, Stopped) that drives
// the worker hooks and schedules itself with an interruptible timed wait.
//
// The state field is mutated only by the service's own goroutine; demand
// flags may be flipped by any goroutine and take effect on the next wake.
type Service struct {
	name    string
	worker  Worker
	logger  log.FieldLogger
	metrics MetricsCollector
	timings Timings

	startRetryPolicy retry.Policy
	startBackoff     backoff.BackOff // owned by the loop goroutine

	running           atomic.Bool
	wanted            atomic.Bool
	shutdownRequested atomic.Bool
	state             atomic.Int32

	holdoff *WaitableHoldoff

	tapsMu sync.Mutex
	taps   []*tapEntry

	done chan struct{}
}

type tapEntry struct {
	handler func(data interface{})
}

// New creates a new Service supervising the given worker and launches its
// goroutine. The service is created stopped and not wanted; call Start to
// express demand.
func New(logger log.FieldLogger, name string, worker Worker) *Service {
	return NewWithOpts(logger, name, worker, Opts{})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(logger log.FieldLogger, name string, worker Worker, opts Opts) *Service {
	timings := opts.Timings.withDefaults()

	startRetryPolicy := opts.StartRetryPolicy
	if startRetryPolicy == nil {
		startRetryPolicy = retry.NewConstantBackoffPolicy(timings.StartRetryInterval, 0)
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = disabledMetricsCollector
	}

	s := &Service{
		name:             name,
		worker:           worker,
		metrics:          metrics,
		timings:          timings,
		startRetryPolicy: startRetryPolicy,
		holdoff:          NewWaitableHoldoff(),
		done:             make(chan struct{}),
	}
	s.logger = log.NewPrefixedLogger(
		logger.With(log.String("service", name), log.String("instance_id", xid.New().String())),
		name+": ",
	)
	s.running.Store(true)
	s.setState(Stopped)

	go s.loop()

	return s
}

// Name returns the service name.
func (s *Service) Name() string {
	return s.name
}

// State returns the current lifecycle state.
func (s *Service) State() RunState {
	return RunState(s.state.Load())
}

// Wanted reports whether a start request is in effect.
func (s *Service) Wanted() bool {
	return s.wanted.Load()
}

// IsAlive reports whether the service goroutine is still running.
// It becomes false only during terminal shutdown.
func (s *Service) IsAlive() bool {
	return s.running.Load()
}

// Start requests that the service be running. It is idempotent and does not
// block; use AwaitReady to wait for the worker to actually start.
func (s *Service) Start() {
	s.logger.Info("requesting start")
	s.wanted.Store(true)
	s.holdoff.Signal()
}

// Stop withdraws demand and requests shutdown of the worker.
// It does not block; use AwaitStopped to wait for the worker to stop.
func (s *Service) Stop() {
	s.logger.Info("requesting stop")
	s.wanted.Store(false)
	s.shutdownRequested.Store(true)
	s.holdoff.Signal()
}

// Restart stops the service, waits until it is stopped and, if it was wanted,
// starts it again and waits for readiness. Best-effort: if the service is
// stopped externally mid-restart, the readiness error propagates.
func (s *Service) Restart() error {
	s.logger.Info("requesting restart")
	wanted := s.wanted.Load()
	s.Stop()
	s.AwaitStopped()
	if wanted {
		s.Start()
		return s.AwaitReady()
	}
	return nil
}

// Shutdown stops the service if needed and joins its goroutine.
// It blocks until the goroutine has fully exited. The service cannot be
// used afterwards.
func (s *Service) Shutdown() {
	if s.State() != Stopped {
		s.Stop()
		s.AwaitStopped()
	}

	s.running.Store(false)
	s.holdoff.Signal()
	<-s.done
}

// IdleWait re-arms the scheduling deadline if timeout is positive and performs
// one interruptible wait on it. It reports true when the wait ended because
// the deadline elapsed. Exposed for worker hooks needing a cancellable sleep
// that reacts to demand changes.
func (s *Service) IdleWait(timeout time.Duration) bool {
	if timeout > 0 {
		s.holdoff.Reset(timeout)
	}
	return s.holdoff.Wait()
}

// AwaitReady blocks until the service reaches the Running state, polling at
// the configured readiness granularity. It fails with an error wrapping
// ErrStopped as soon as the service goroutine dies or demand is withdrawn,
// so callers never block on a service that will not become ready.
func (s *Service) AwaitReady() error {
	for {
		if !s.running.Load() || !s.wanted.Load() {
			return fmt.Errorf("%s: service stopped while waiting for it to start: %w", s.name, ErrStopped)
		}

		if s.State() == Running {
			s.logger.Debug("ready")
			return nil
		}

		s.logger.Debug("awaiting ready", log.String("state", s.State().String()))
		s.IdleWait(s.timings.ReadyPollInterval)
	}
}

// AwaitStopped blocks until the service reaches the Stopped state, polling at
// the configured readiness granularity. It returns false immediately, without
// an error, if the service is started again mid-wait.
func (s *Service) AwaitStopped() bool {
	for {
		if s.wanted.Load() {
			s.logger.Warn("service started while waiting for it to stop")
			return false
		}

		if s.State() == Stopped {
			s.logger.Debug("stopped")
			return true
		}

		s.logger.Debug("awaiting stopped", log.String("state", s.State().String()))
		s.IdleWait(s.timings.ReadyPollInterval)
	}
}

// Notify invokes every tapped handler with data, in registration order.
// Handler panics are not contained by this layer.
func (s *Service) Notify(data interface{}) {
	s.tapsMu.Lock()
	taps := make([]*tapEntry, len(s.taps))
	copy(taps, s.taps)
	s.tapsMu.Unlock()

	for _, t := range taps {
		t.handler(data)
	}
}

// Tap registers handler as an observer of Notify payloads and returns a
// function removing the registration. Callers should defer the returned
// function so removal is guaranteed on all exit paths:
//
//	untap := svc.Tap(handler)
//	defer untap()
func (s *Service) Tap(handler func(data interface{})) (untap func()) {
	entry := &tapEntry{handler: handler}
	s.tapsMu.Lock()
	s.taps = append(s.taps, entry)
	s.tapsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.tapsMu.Lock()
			defer s.tapsMu.Unlock()
			for i, t := range s.taps {
				if t == entry {
					s.taps = append(s.taps[:i], s.taps[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Service) setState(state RunState) {
	s.state.Store(int32(state))
	s.metrics.SetState(state)
}

func (s *Service) loop() {
	defer close(s.done)
	defer s.logger.Debug("goroutine exit")

	if err := s.runHook("init", s.worker.Init); err != nil {
		s.logger.Error("failed to initialize worker, shutting down service", log.Error(err))
		s.running.Store(false)
		return
	}

	for s.running.Load() {
		switch s.State() {
		case Starting:
			if s.holdoff.Wait() {
				s.attemptStart()
			} else {
				// woken early, debounce and re-check next cycle
				s.holdoff.Reset(s.timings.StartRetryInterval)
			}

		case Running:
			if s.wanted.Load() {
				s.attemptRun()
			} else {
				s.logger.Debug("worker going idle")
				s.setState(Idle)
				s.holdoff.Reset(s.timings.IdleGrace)
			}

		case Idle:
			if s.shutdownRequested.Load() || s.holdoff.Wait() {
				s.logger.Debug("stopping worker")
				s.setState(Stopping)
				s.holdoff.Reset(0)
			} else if s.wanted.Load() {
				s.logger.Debug("worker resuming")
				s.setState(Running)
			}
			// An early wake with no shutdown and no re-want changes nothing;
			// the next iteration re-evaluates against the unchanged deadline.

		case Stopping:
			if s.holdoff.Wait() {
				s.attemptStop()
			} else {
				s.holdoff.Reset(s.timings.StopRetryInterval)
			}

		case Stopped:
			s.holdoff.Wait()
			if s.wanted.Load() {
				s.logger.Debug("starting worker")
				s.setState(Starting)
				s.startBackoff = s.startRetryPolicy.NewBackOff()
				s.holdoff.Reset(0)
			} else {
				s.holdoff.Reset(s.timings.StoppedPollInterval)
			}
		}
	}
}

func (s *Service) attemptStart() {
	s.logger.Debug("worker starting")
	err := s.runHook("start", s.worker.Start)
	if err == nil {
		s.logger.Info("worker started")
		s.setState(Running)
		return
	}

	s.metrics.IncStartFailures()

	if s.wanted.Load() {
		delay := s.nextStartDelay()
		switch {
		case isTimeout(err):
			// timeouts are retried silently
		case errors.Is(err, ErrStopped):
			s.logger.Warn("failed to start worker, retrying",
				log.Error(err), log.Duration("delay", delay))
		default:
			s.logger.Error("failed to start worker, retrying",
				log.Error(err), log.Duration("delay", delay))
		}
		s.holdoff.Reset(delay)
		return
	}

	if !isTimeout(err) && !errors.Is(err, ErrStopped) {
		s.logger.Error("failed to start worker, shutting down service", log.Error(err))
	}
	s.setState(Stopped)
}

func (s *Service) nextStartDelay() time.Duration {
	if s.startBackoff == nil {
		s.startBackoff = s.startRetryPolicy.NewBackOff()
	}
	delay := s.startBackoff.NextBackOff()
	if delay == backoff.Stop {
		// an exhausted policy must not stall the state machine
		delay = s.timings.StartRetryInterval
	}
	return delay
}

func (s *Service) attemptRun() {
	s.holdoff.Reset(s.timings.RunInterval)
	err := s.runHook("run", func() error { return s.worker.Run(s.timings.RunInterval) })
	if err == nil {
		return
	}

	if errors.Is(err, ErrRestartRequested) {
		s.logger.Info("worker requested restart")
		s.metrics.IncRestarts()
		s.setState(Stopping)
		s.holdoff.Reset(s.timings.RestartDelay)
		return
	}

	s.metrics.IncRunErrors()
	s.logger.Error("unexpected error while running worker", log.Error(err))
	s.logger.Warn("stopping worker due to error")
	s.setState(Stopping)
	s.holdoff.Reset(0)
}

func (s *Service) attemptStop() {
	err := s.runHook("stop", s.worker.Stop)
	if err != nil {
		s.logger.Error("failed to stop worker, retrying",
			log.Error(err), log.Duration("delay", s.timings.StopRetryInterval))
		s.holdoff.Reset(s.timings.StopRetryInterval)
		return
	}

	s.logger.Info("worker stopped")
	s.setState(Stopped)
}

// runHook contains worker panics at the loop boundary, converting them into
// ordinary hook errors.
func (s *Service) runHook(hook string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			s.logger.Error(fmt.Sprintf("panic in worker %s hook: %+v", hook, p), log.Bytes("stack", stack))
			err = fmt.Errorf("panic in worker %s hook: %v", hook, p)
		}
	}()
	return fn()
}
