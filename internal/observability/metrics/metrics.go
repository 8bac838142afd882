// Package metrics exposes prometheus instruments for the billing engine.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics captures billing run health signals.
type BillingMetrics struct {
	batchRuns       prometheus.Counter
	batchDuration   prometheus.Histogram
	outcomes        *prometheus.CounterVec
	invoicesCreated prometheus.Counter
	invoicesUpdated prometheus.Counter
}

// NewBillingMetrics registers the billing instruments.
func NewBillingMetrics(registerer prometheus.Registerer, serviceName, environment string) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = "billingd"
	}
	environment = strings.TrimSpace(environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &BillingMetrics{
		batchRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "billing_batch_runs_total",
			Help:        "Batch billing runs started.",
			ConstLabels: constLabels,
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "billing_batch_duration_seconds",
			Help:        "Batch billing run latency.",
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "billing_customer_outcomes_total",
			Help:        "Per-customer billing outcomes by kind.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		invoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "billing_invoices_created_total",
			Help:        "Invoices created by billing runs.",
			ConstLabels: constLabels,
		}),
		invoicesUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "billing_invoices_updated_total",
			Help:        "Invoices updated by billing runs.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.batchRuns,
		m.batchDuration,
		m.outcomes,
		m.invoicesCreated,
		m.invoicesUpdated,
	)
	return m
}

func (m *BillingMetrics) IncBatchRun() {
	if m == nil {
		return
	}
	m.batchRuns.Inc()
}

func (m *BillingMetrics) ObserveBatchDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}

func (m *BillingMetrics) IncOutcome(kind string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind).Inc()
}

func (m *BillingMetrics) IncInvoiceCreated() {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc()
}

func (m *BillingMetrics) IncInvoiceUpdated() {
	if m == nil {
		return
	}
	m.invoicesUpdated.Inc()
}
