/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-svckit/log/logtest"
)

func TestStreamUnknownService(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Stream(context.Background(), "db")
	require.ErrorIs(t, err, ErrUnknownService)
}

func TestStreamDeliversNotifyPayloads(t *testing.T) {
	mgr, _ := newTestManager(t)
	svc := registerTestService(t, mgr, "db", &countingWorker{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := mgr.Stream(ctx, "db")
	require.NoError(t, err)

	// Opening the stream takes a reference that starts the service.
	require.Eventually(t, func() bool { return svc.State() == Running }, testWaitTimeout, testWaitTick)

	// The tap is registered asynchronously, so publish until a payload
	// makes it through.
	var got interface{}
	require.Eventually(t, func() bool {
		svc.Notify("ping")
		select {
		case v, ok := <-stream:
			if !ok {
				return false
			}
			got = v
			return true
		default:
			return false
		}
	}, testWaitTimeout, testWaitTick)
	require.Equal(t, "ping", got)

	// Canceling the consumer terminates the stream and releases the
	// reference, stopping the service.
	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-stream:
			return !ok
		default:
			return false
		}
	}, testWaitTimeout, testWaitTick)

	require.Eventually(t, func() bool { return svc.State() == Stopped }, testWaitTimeout, testWaitTick)
	require.NoError(t, mgr.Unregister("db"))
}

func TestStreamNeverReadyYieldsEmptyStream(t *testing.T) {
	mgr, _ := newTestManager(t)
	worker := &countingWorker{}
	worker.init = func() error { return errTest }
	registerTestService(t, mgr, "db", worker)

	stream, err := mgr.Stream(context.Background(), "db")
	require.NoError(t, err)

	select {
	case _, ok := <-stream:
		require.False(t, ok)
	case <-time.After(testWaitTimeout):
		t.Fatal("stream was not terminated")
	}

	require.NoError(t, mgr.Unregister("db"))
}

func TestStreamEndsWhenServiceLeavesRunning(t *testing.T) {
	mgr, _ := newTestManager(t)
	svc := registerTestService(t, mgr, "db", &countingWorker{})

	stream, err := mgr.Stream(context.Background(), "db")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return svc.State() == Running }, testWaitTimeout, testWaitTick)

	svc.Stop()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-stream:
			return !ok
		default:
			return false
		}
	}, testWaitTimeout, testWaitTick)
}

func TestStreamDropsPayloadsForSlowConsumer(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	mgr := NewServiceManagerWithOpts(logRecorder, ManagerOpts{StreamBufferSize: 1})

	metrics := &recordingMetrics{}
	svc := NewWithOpts(logtest.NewRecorder(), "db", &countingWorker{}, Opts{
		Timings: testTimings(),
		Metrics: metrics,
	})
	t.Cleanup(svc.Shutdown)
	require.NoError(t, mgr.Register("db", svc))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := mgr.Stream(ctx, "db")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return svc.State() == Running }, testWaitTimeout, testWaitTick)

	// Nobody reads from the stream, so a burst must overflow the bounded
	// queue and get dropped instead of blocking Notify.
	require.Eventually(t, func() bool {
		for i := 0; i < 10; i++ {
			svc.Notify(i)
		}
		return metrics.streamDropped.Load() > 0
	}, testWaitTimeout, testWaitTick)

	cancel()
	for range stream {
	}
}
