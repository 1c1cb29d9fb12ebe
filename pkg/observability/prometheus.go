// Package observability provides Prometheus metrics for the mount helper.
//
// The helper is a short-lived process, so metrics are not served over
// HTTP. When a textfile path is configured they are written once at exit
// in the node_exporter textfile collector format.
package observability

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	// namespace is the Prometheus metric namespace prefix for all helper metrics.
	namespace = "fusermount"
)

// Metrics holds all Prometheus metrics for one helper invocation.
type Metrics struct {
	registry *prometheus.Registry

	// Operation metrics (mount, unmount)
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Per-tier mount attempt metrics
	mountAttemptsTotal *prometheus.CounterVec

	// Handoff metrics
	handoffsTotal  *prometheus.CounterVec
	rollbacksTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
// Uses a custom registry so only helper metrics end up in the textfile.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of helper operations by type and status",
			},
			[]string{"operation", "status"},
		),

		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of helper operations in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),

		mountAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mount_attempts_total",
				Help:      "Total number of mount(2) attempts by tier and status",
			},
			[]string{"tier", "status"},
		),

		handoffsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handoffs_total",
				Help:      "Total number of descriptor handoffs by status",
			},
			[]string{"status"},
		),

		rollbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Total number of mount rollbacks after a failed handoff by status",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.mountAttemptsTotal,
		m.handoffsTotal,
		m.rollbacksTotal,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordOperation records a mount or unmount operation with timing.
func (m *Metrics) RecordOperation(operation string, err error, duration time.Duration) {
	m.operationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordMountAttempt records one tier attempt.
func (m *Metrics) RecordMountAttempt(tier string, err error) {
	m.mountAttemptsTotal.WithLabelValues(tier, status(err)).Inc()
}

// RecordHandoff records a descriptor handoff.
func (m *Metrics) RecordHandoff(err error) {
	m.handoffsTotal.WithLabelValues(status(err)).Inc()
}

// RecordRollback records a detach performed after a failed handoff.
func (m *Metrics) RecordRollback(err error) {
	m.rollbacksTotal.WithLabelValues(status(err)).Inc()
}

// WriteTextfile writes all metrics to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// Summary renders every non-zero counter on one line, for the exit log.
func (m *Metrics) Summary() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("failed to gather metrics: %w", err)
	}

	var parts []string
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, metric := range mf.GetMetric() {
			value := metric.GetCounter().GetValue()
			if value == 0 {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s%s=%g", mf.GetName(), labelString(metric.GetLabel()), value))
		}
	}
	return strings.Join(parts, " "), nil
}

func labelString(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(labels))
	for _, l := range labels {
		pairs = append(pairs, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}
