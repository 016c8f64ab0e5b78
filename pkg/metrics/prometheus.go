package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry                *prometheus.Registry
	assessmentsTotal        *prometheus.CounterVec
	assessmentsFailed       *prometheus.CounterVec
	assessmentDuration      prometheus.Histogram
	probabilityDistribution prometheus.Histogram
	fallbacksTotal          prometheus.Counter
	modelReloads            *prometheus.CounterVec
	breakerState            *prometheus.GaugeVec
	alertsTotal             *prometheus.CounterVec
	server                  *http.Server
	logger                  *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &MetricsCollector{
		registry: registry,
		assessmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_assessments_total",
			Help: "Total number of completed assessments",
		}, []string{"strategy", "risk_tier"}),
		assessmentsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_assessments_failed_total",
			Help: "Total number of assessments that produced no result",
		}, []string{"code"}),
		assessmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_assessment_duration_seconds",
			Help:    "Time taken to assess a transaction",
			Buckets: prometheus.DefBuckets,
		}),
		probabilityDistribution: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_probability_distribution",
			Help:    "Distribution of assessed fraud probabilities",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		fallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fraud_scoring_fallbacks_total",
			Help: "Assessments answered by weighted rules because the classifier was unavailable",
		}),
		modelReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_model_reloads_total",
			Help: "Model reload attempts by result",
		}, []string{"result"}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current state of circuit breakers (0=closed, 0.5=half-open, 1=open)",
		}, []string{"breaker"}),
		alertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_alerts_total",
			Help: "Fraud alerts by delivery result",
		}, []string{"result"}),
		logger: logger,
	}
}

func (m *MetricsCollector) RecordAssessment(duration time.Duration, strategy, tier string, probability float64, fallback bool) {
	m.assessmentsTotal.WithLabelValues(strategy, tier).Inc()
	m.assessmentDuration.Observe(duration.Seconds())
	m.probabilityDistribution.Observe(probability)
	if fallback {
		m.fallbacksTotal.Inc()
	}
}

func (m *MetricsCollector) RecordFailure(code string) {
	m.assessmentsFailed.WithLabelValues(code).Inc()
}

func (m *MetricsCollector) RecordModelReload(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.modelReloads.WithLabelValues(result).Inc()
}

func (m *MetricsCollector) SetBreakerState(name string, value float64) {
	m.breakerState.WithLabelValues(name).Set(value)
}

func (m *MetricsCollector) RecordAlert(delivered bool) {
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	m.alertsTotal.WithLabelValues(result).Inc()
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer serves /metrics on addr until Shutdown.
func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	m.server = server

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	if err := m.server.Shutdown(ctx); err != nil {
		return err
	}
	m.logger.Info("Metrics collector shutdown complete")
	return nil
}
