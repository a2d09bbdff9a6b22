package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry            *prometheus.Registry
	executionsProcessed prometheus.Counter
	executionsFailed    prometheus.Counter
	sweepDuration       prometheus.Histogram
	cycleComputations   prometheus.Counter
	partialAggregations prometheus.Counter
	budgetUsage         *prometheus.GaugeVec
	server              *http.Server
	logger              *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	collector := &MetricsCollector{
		registry: registry,
		executionsProcessed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "recurring_executions_total",
			Help: "Total number of recurring occurrences materialized into the ledger",
		}),
		executionsFailed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "recurring_executions_failed_total",
			Help: "Total number of recurring occurrences rejected by the ledger",
		}),
		sweepDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "recurring_sweep_duration_seconds",
			Help:    "Time taken to sweep all active rules",
			Buckets: prometheus.DefBuckets,
		}),
		cycleComputations: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "budget_cycle_computations_total",
			Help: "Total number of budget cycles computed",
		}),
		partialAggregations: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "budget_partial_aggregations_total",
			Help: "Budget cycles computed with postings skipped for missing rates",
		}),
		budgetUsage: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "budget_usage_rate",
			Help: "Current cycle usage rate per budget",
		}, []string{"budget", "currency"}),
		logger: logger,
	}

	return collector
}

func (m *MetricsCollector) RecordSweep(duration time.Duration, executed, failed int) {
	m.executionsProcessed.Add(float64(executed))
	m.executionsFailed.Add(float64(failed))
	m.sweepDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordCycle(partial bool) {
	m.cycleComputations.Inc()
	if partial {
		m.partialAggregations.Inc()
	}
}

func (m *MetricsCollector) UpdateBudgetUsage(budget, currency string, usageRate float64) {
	m.budgetUsage.WithLabelValues(budget, currency).Set(usageRate)
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	m.server = server
	return server
}

// Shutdown stops the metrics server started by StartMetricsServer, draining
// in-flight scrapes until ctx expires. A collector that never started a
// server shuts down cleanly.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
	}
	m.logger.Info("Metrics collector shutdown complete")
	return nil
}
