// Package metrics exposes the settlement pipeline counters. Every method is
// safe on a nil *Metrics so callers never need to guard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "fuelsync_"

const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultCached  = "cached"
)

type Metrics struct {
	readings        *prometheus.CounterVec
	transactions    *prometheus.CounterVec
	creditWarnings  prometheus.Counter
	shiftsClosed    *prometheus.CounterVec
	handovers       *prometheus.CounterVec
	reportTotal     *prometheus.CounterVec
	reportLatency   *prometheus.HistogramVec
	auditLogFailure prometheus.Counter
}

// New builds the collectors and registers them with reg. A nil reg skips
// registration, which keeps tests independent of the default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		readings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_total",
				Help: "Total nozzle readings by result",
			},
			[]string{"result"},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transactions_total",
				Help: "Total settlement transactions by result",
			},
			[]string{"result"},
		),
		creditWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "credit_limit_warnings_total",
			Help: "Total creditors pushed over their credit limit",
		}),
		shiftsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "shifts_closed_total",
				Help: "Total closed shifts by variance status",
			},
			[]string{"status"},
		),
		handovers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "handover_transitions_total",
				Help: "Total cash handover transitions by resulting status",
			},
			[]string{"status"},
		),
		reportTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_report_total",
				Help: "Total settlement report requests by result",
			},
			[]string{"result"},
		),
		reportLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_report_latency_seconds",
				Help:    "Settlement report latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		auditLogFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "audit_log_failures_total",
			Help: "Total audit log writes that failed",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.readings,
			m.transactions,
			m.creditWarnings,
			m.shiftsClosed,
			m.handovers,
			m.reportTotal,
			m.reportLatency,
			m.auditLogFailure,
		)
	}
	return m
}

func (m *Metrics) IncReading(result string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(orUnknown(result)).Inc()
}

func (m *Metrics) IncTransaction(result string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(orUnknown(result)).Inc()
}

func (m *Metrics) AddCreditWarnings(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.creditWarnings.Add(float64(count))
}

// IncShiftClosed counts a closed shift under its variance status.
func (m *Metrics) IncShiftClosed(varianceStatus string) {
	if m == nil {
		return
	}
	m.shiftsClosed.WithLabelValues(orUnknown(varianceStatus)).Inc()
}

func (m *Metrics) IncHandover(status string) {
	if m == nil {
		return
	}
	m.handovers.WithLabelValues(orUnknown(status)).Inc()
}

// ObserveReport records report latency and result.
func (m *Metrics) ObserveReport(result string, duration time.Duration) {
	if m == nil {
		return
	}
	result = orUnknown(result)
	m.reportTotal.WithLabelValues(result).Inc()
	m.reportLatency.WithLabelValues(result).Observe(duration.Seconds())
}

func (m *Metrics) IncAuditLogFailure() {
	if m == nil {
		return
	}
	m.auditLogFailure.Inc()
}

func orUnknown(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}
