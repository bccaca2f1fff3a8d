/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/acronis/go-svckit/log"
)

// RunnerOpts represents options for Runner.
type RunnerOpts struct {
	ShutdownSignals []os.Signal
}

// Runner ties a ServiceManager to the lifetime of the embedding process:
// it blocks until an OS shutdown signal arrives or the context is canceled,
// then performs the manager's ordered global shutdown exactly once.
type Runner struct {
	Manager *ServiceManager
	Signals chan os.Signal
	Logger  log.FieldLogger
	Opts    RunnerOpts
}

// NewRunner creates a new Runner shutting down on SIGINT and SIGTERM.
func NewRunner(logger log.FieldLogger, mgr *ServiceManager) *Runner {
	return NewRunnerWithOpts(logger, mgr, RunnerOpts{
		ShutdownSignals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	})
}

// NewRunnerWithOpts is a more configurable version of NewRunner.
func NewRunnerWithOpts(logger log.FieldLogger, mgr *ServiceManager, opts RunnerOpts) *Runner {
	return &Runner{
		Manager: mgr,
		Signals: make(chan os.Signal, 1),
		Logger:  logger,
		Opts:    opts,
	}
}

// Run wraps RunContext using the background context.
func (r *Runner) Run() {
	r.RunContext(context.Background())
}

// RunContext blocks until the context is canceled or any of the configured
// OS signals is received, then shuts the manager down.
func (r *Runner) RunContext(ctx context.Context) {
	signal.Notify(r.Signals, r.Opts.ShutdownSignals...)
	defer signal.Stop(r.Signals)

	select {
	case <-ctx.Done():
		r.Logger.Info("context is canceled, services will be stopped")
	case sig := <-r.Signals:
		r.Logger.Info("got signal, services will be stopped", log.String("signal", sig.String()))
	}

	r.Manager.Shutdown()
}
