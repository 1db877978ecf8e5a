// Package metrics holds the Prometheus collectors for sync and inference.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pantrysync"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	syncRecords       *prometheus.CounterVec
	syncRuns          *prometheus.CounterVec
	inferenceAttempts *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
}

// MustNew registers the collectors on reg and panics on a conflicting
// registration. Already registered collectors are reused, so tests may call
// it repeatedly against the same registry.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		syncRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Records processed by reconcile, by collection and result.",
		}, []string{"collection", "result"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Reconcile runs by result.",
		}, []string{"result"}),
		inferenceAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "attempts_total",
			Help:      "Inference candidate attempts by outcome.",
		}, []string{"outcome"}),
		inferenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "duration_seconds",
			Help:      "Latency of a single inference candidate attempt.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
	}

	m.syncRecords = register(reg, m.syncRecords)
	m.syncRuns = register(reg, m.syncRuns)
	m.inferenceAttempts = register(reg, m.inferenceAttempts)
	m.inferenceDuration = register(reg, m.inferenceDuration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// SyncRecord counts one record handled by reconcile. result is synced,
// superseded or the failing stage.
func (m *Metrics) SyncRecord(collection, result string) {
	if m == nil {
		return
	}
	m.syncRecords.WithLabelValues(collection, result).Inc()
}

func (m *Metrics) SyncRun(result string) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) InferenceAttempt(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.inferenceAttempts.WithLabelValues(outcome).Inc()
	m.inferenceDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
