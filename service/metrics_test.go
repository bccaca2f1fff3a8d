/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	t.Run("state gauge marks exactly one state", func(t *testing.T) {
		pm := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{Namespace: "test"})

		pm.SetState(Running)
		for _, st := range runStates {
			want := 0.0
			if st == Running {
				want = 1.0
			}
			got := testutil.ToFloat64(pm.State.With(prometheus.Labels{"state": st.String()}))
			require.Equal(t, want, got, "state %s", st)
		}

		pm.SetState(Stopping)
		require.Equal(t, 0.0, testutil.ToFloat64(pm.State.With(prometheus.Labels{"state": Running.String()})))
		require.Equal(t, 1.0, testutil.ToFloat64(pm.State.With(prometheus.Labels{"state": Stopping.String()})))
	})

	t.Run("counters", func(t *testing.T) {
		pm := NewPrometheusMetrics()

		pm.IncStartFailures()
		pm.IncStartFailures()
		pm.IncRestarts()
		pm.IncRunErrors()
		pm.IncStreamDropped()

		require.Equal(t, 2.0, testutil.ToFloat64(pm.StartFailuresTotal))
		require.Equal(t, 1.0, testutil.ToFloat64(pm.RestartsTotal))
		require.Equal(t, 1.0, testutil.ToFloat64(pm.RunErrorsTotal))
		require.Equal(t, 1.0, testutil.ToFloat64(pm.StreamDroppedTotal))
	})

	t.Run("curried labels", func(t *testing.T) {
		pm := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{
			CurriedLabelNames: []string{"service"},
		})
		curried := pm.MustCurryWith(prometheus.Labels{"service": "db"})

		curried.SetState(Idle)
		require.Equal(t, 1.0, testutil.ToFloat64(curried.State.With(prometheus.Labels{"state": Idle.String()})))

		curried.IncRestarts()
		require.Equal(t, 1.0, testutil.ToFloat64(curried.RestartsTotal))
	})

	t.Run("register and unregister", func(t *testing.T) {
		pm := NewPrometheusMetrics()
		pm.MustRegister()
		defer pm.Unregister()
		require.Panics(t, func() { NewPrometheusMetrics().MustRegister() })
	})
}

func TestServiceReportsLifecycleMetrics(t *testing.T) {
	worker := &countingWorker{}
	worker.start = func() error {
		if worker.starts.Load() == 1 {
			return errTest
		}
		return nil
	}

	metrics := &recordingMetrics{}
	svc, _ := newTestService(t, "db", worker, Opts{Metrics: metrics})

	svc.Start()
	require.Eventually(t, func() bool { return svc.State() == Running }, testWaitTimeout, testWaitTick)
	require.EqualValues(t, 1, metrics.startFailures.Load())
}
