// Package observability wires the prometheus instruments.
package observability

import (
	"github.com/lessonworks/billing/internal/config"
	"github.com/lessonworks/billing/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

func provideBillingMetrics(cfg config.Config) *metrics.BillingMetrics {
	return metrics.NewBillingMetrics(prometheus.DefaultRegisterer, cfg.AppName, cfg.Environment)
}

var Module = fx.Module("observability",
	fx.Provide(provideBillingMetrics),
)
