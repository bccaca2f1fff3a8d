/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-svckit/log/logtest"
)

func newTestManager(t *testing.T) (*ServiceManager, *logtest.Recorder) {
	t.Helper()
	logRecorder := logtest.NewRecorder()
	return NewServiceManager(logRecorder), logRecorder
}

func registerTestService(t *testing.T, mgr *ServiceManager, name string, worker Worker) *Service {
	t.Helper()
	logRecorder := logtest.NewRecorder()
	svc := NewWithOpts(logRecorder, name, worker, Opts{Timings: testTimings()})
	t.Cleanup(svc.Shutdown)
	require.NoError(t, mgr.Register(name, svc))
	return svc
}

func TestServiceManagerRegistry(t *testing.T) {
	mgr, _ := newTestManager(t)

	registerTestService(t, mgr, "db", &countingWorker{})
	registerTestService(t, mgr, "indexer", &countingWorker{})

	require.True(t, mgr.Has("db"))
	require.False(t, mgr.Has("mailer"))
	require.Equal(t, []string{"db", "indexer"}, mgr.Names())

	err := mgr.Register("db", nil)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	require.ErrorIs(t, mgr.Unregister("mailer"), ErrUnknownService)

	require.NoError(t, mgr.Unregister("indexer"))
	require.False(t, mgr.Has("indexer"))
	require.Equal(t, []string{"db"}, mgr.Names())
}

func TestServiceManagerRefCounting(t *testing.T) {
	mgr, _ := newTestManager(t)
	worker := &countingWorker{}
	svc := registerTestService(t, mgr, "db", worker)

	got, err := mgr.Get("db", true)
	require.NoError(t, err)
	require.Same(t, svc, got)
	require.Equal(t, Running, svc.State())
	require.EqualValues(t, 1, worker.starts.Load())

	// Another reference must not start the worker again.
	_, err = mgr.Get("db", true)
	require.NoError(t, err)
	require.EqualValues(t, 1, worker.starts.Load())

	// Cannot unregister while referenced.
	require.ErrorIs(t, mgr.Unregister("db"), ErrServiceInUse)

	// Releasing a non-last reference keeps the worker running.
	require.NoError(t, mgr.Put("db"))
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, Running, svc.State())
	require.EqualValues(t, 0, worker.stops.Load())

	// Releasing the last reference stops it.
	require.NoError(t, mgr.Put("db"))
	require.Eventually(t, func() bool { return svc.State() == Stopped }, testWaitTimeout, testWaitTick)
	require.EqualValues(t, 1, worker.stops.Load())

	require.ErrorIs(t, mgr.Put("db"), ErrNoReference)
	require.NoError(t, mgr.Unregister("db"))
}

func TestServiceManagerGetUnknown(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Get("db", true)
	require.ErrorIs(t, err, ErrUnknownService)
	require.ErrorIs(t, mgr.Put("db"), ErrUnknownService)
}

func TestServiceManagerGetReleasesReferenceOnReadinessFailure(t *testing.T) {
	mgr, _ := newTestManager(t)
	worker := &countingWorker{}
	worker.init = func() error { return errTest } // the service will never be ready
	registerTestService(t, mgr, "db", worker)

	_, err := mgr.Get("db", true)
	require.ErrorIs(t, err, ErrStopped)

	// The reference taken by Get must have been released.
	require.NoError(t, mgr.Unregister("db"))
}

func TestServiceManagerGetFlakyStart(t *testing.T) {
	mgr, _ := newTestManager(t)
	worker := &countingWorker{}
	worker.start = func() error {
		if worker.starts.Load() < 3 {
			return errTest
		}
		return nil
	}
	registerTestService(t, mgr, "db", worker)

	svc, err := mgr.Get("db", true)
	require.NoError(t, err)
	require.Equal(t, Running, svc.State())
	require.EqualValues(t, 3, worker.starts.Load())
}

func TestServiceManagerBorrow(t *testing.T) {
	t.Run("releases the reference after fn", func(t *testing.T) {
		mgr, _ := newTestManager(t)
		worker := &countingWorker{}
		svc := registerTestService(t, mgr, "db", worker)

		err := mgr.Borrow("db", func(borrowed *Service) error {
			require.Same(t, svc, borrowed)
			require.Equal(t, Running, borrowed.State())
			return errTest
		})
		require.ErrorIs(t, err, errTest)

		require.Eventually(t, func() bool { return svc.State() == Stopped }, testWaitTimeout, testWaitTick)
		require.NoError(t, mgr.Unregister("db"))
	})

	t.Run("releases the reference when fn panics", func(t *testing.T) {
		mgr, _ := newTestManager(t)
		registerTestService(t, mgr, "db", &countingWorker{})

		require.Panics(t, func() {
			_ = mgr.Borrow("db", func(*Service) error { panic("boom") })
		})
		require.NoError(t, mgr.Unregister("db"))
	})
}

func TestServiceManagerRestartAll(t *testing.T) {
	mgr, _ := newTestManager(t)
	wantedWorker := &countingWorker{}
	idleWorker := &countingWorker{}
	wantedSvc := registerTestService(t, mgr, "db", wantedWorker)
	idleSvc := registerTestService(t, mgr, "indexer", idleWorker)

	_, err := mgr.Get("db", true)
	require.NoError(t, err)

	mgr.RestartAll(true)

	require.Equal(t, Running, wantedSvc.State())
	require.EqualValues(t, 2, wantedWorker.starts.Load())
	require.EqualValues(t, 1, wantedWorker.stops.Load())

	require.Equal(t, Stopped, idleSvc.State())
	require.EqualValues(t, 0, idleWorker.starts.Load())
}

func TestServiceManagerShutdown(t *testing.T) {
	mgr, logRecorder := newTestManager(t)
	workerA := &countingWorker{}
	workerB := &countingWorker{}
	svcA := registerTestService(t, mgr, "db", workerA)
	svcB := registerTestService(t, mgr, "indexer", workerB)

	_, err := mgr.Get("db", true)
	require.NoError(t, err)
	_, err = mgr.Get("indexer", true)
	require.NoError(t, err)

	mgr.Shutdown()

	require.False(t, svcA.IsAlive())
	require.False(t, svcB.IsAlive())
	require.Equal(t, Stopped, svcA.State())
	require.Equal(t, Stopped, svcB.State())
	require.EqualValues(t, 1, workerA.stops.Load())
	require.EqualValues(t, 1, workerB.stops.Load())

	_, found := logRecorder.FindEntry("service manager: shutdown complete")
	require.True(t, found)
}

func TestServiceManagerDump(t *testing.T) {
	mgr, logRecorder := newTestManager(t)
	registerTestService(t, mgr, "db", &countingWorker{})

	mgr.Dump()

	_, found := logRecorder.FindEntry("service manager: service state")
	require.True(t, found)
	entries := logRecorder.FindAllEntriesByFilter(func(entry logtest.RecordedEntry) bool {
		return strings.Contains(entry.Text, "db") && strings.Contains(entry.Text, "state=stopped")
	})
	require.NotEmpty(t, entries)
}
