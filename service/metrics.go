/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector represents a collector of service lifecycle metrics.
type MetricsCollector interface {
	// SetState records the service's current lifecycle state.
	SetState(state RunState)

	// IncStartFailures increments the total number of failed worker start attempts.
	IncStartFailures()

	// IncRestarts increments the total number of worker-requested restarts.
	IncRestarts()

	// IncRunErrors increments the total number of unexpected worker run errors.
	IncRunErrors()

	// IncStreamDropped increments the total number of stream payloads dropped
	// because a consumer could not keep up.
	IncStreamDropped()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the
	// provided labels. See PrometheusMetrics.MustCurryWith method for more details.
	// Keep in mind that if this list is not empty,
	// PrometheusMetrics.MustCurryWith method must be called further with the same labels.
	// Otherwise, the collector will panic.
	CurriedLabelNames []string
}

// PrometheusMetrics represents Prometheus metrics for a supervised service.
type PrometheusMetrics struct {
	State              *prometheus.GaugeVec
	StartFailuresTotal *prometheus.CounterVec
	RestartsTotal      *prometheus.CounterVec
	RunErrorsTotal     *prometheus.CounterVec
	StreamDroppedTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	state := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "service_state",
			Help:        "Current lifecycle state of the service (1 for the active state, 0 otherwise).",
			ConstLabels: opts.ConstLabels,
		},
		append(append([]string{}, opts.CurriedLabelNames...), "state"),
	)

	startFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "service_start_failures_total",
			Help:        "Number of failed worker start attempts.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	restartsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "service_restarts_total",
			Help:        "Number of worker-requested restarts.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	runErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "service_run_errors_total",
			Help:        "Number of unexpected worker run errors.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	streamDroppedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "service_stream_dropped_payloads_total",
			Help:        "Number of stream payloads dropped because the consumer could not keep up.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	return &PrometheusMetrics{
		State:              state,
		StartFailuresTotal: startFailuresTotal,
		RestartsTotal:      restartsTotal,
		RunErrorsTotal:     runErrorsTotal,
		StreamDroppedTotal: streamDroppedTotal,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		State:              pm.State.MustCurryWith(labels),
		StartFailuresTotal: pm.StartFailuresTotal.MustCurryWith(labels),
		RestartsTotal:      pm.RestartsTotal.MustCurryWith(labels),
		RunErrorsTotal:     pm.RunErrorsTotal.MustCurryWith(labels),
		StreamDroppedTotal: pm.StreamDroppedTotal.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.State,
		pm.StartFailuresTotal,
		pm.RestartsTotal,
		pm.RunErrorsTotal,
		pm.StreamDroppedTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.State)
	prometheus.Unregister(pm.StartFailuresTotal)
	prometheus.Unregister(pm.RestartsTotal)
	prometheus.Unregister(pm.RunErrorsTotal)
	prometheus.Unregister(pm.StreamDroppedTotal)
}

// SetState records the service's current lifecycle state.
func (pm *PrometheusMetrics) SetState(state RunState) {
	for _, st := range runStates {
		var v float64
		if st == state {
			v = 1
		}
		pm.State.With(prometheus.Labels{"state": st.String()}).Set(v)
	}
}

// IncStartFailures increments the total number of failed worker start attempts.
func (pm *PrometheusMetrics) IncStartFailures() {
	pm.StartFailuresTotal.With(nil).Inc()
}

// IncRestarts increments the total number of worker-requested restarts.
func (pm *PrometheusMetrics) IncRestarts() {
	pm.RestartsTotal.With(nil).Inc()
}

// IncRunErrors increments the total number of unexpected worker run errors.
func (pm *PrometheusMetrics) IncRunErrors() {
	pm.RunErrorsTotal.With(nil).Inc()
}

// IncStreamDropped increments the total number of dropped stream payloads.
func (pm *PrometheusMetrics) IncStreamDropped() {
	pm.StreamDroppedTotal.With(nil).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) SetState(RunState) {}
func (disabledMetrics) IncStartFailures() {}
func (disabledMetrics) IncRestarts()      {}
func (disabledMetrics) IncRunErrors()     {}
func (disabledMetrics) IncStreamDropped() {}

var disabledMetricsCollector = disabledMetrics{}
