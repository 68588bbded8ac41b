package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	CodesSent        *prometheus.CounterVec
	CodeSubmissions  *prometheus.CounterVec
	ReviewDecisions  *prometheus.CounterVec
	Withdrawals      *prometheus.CounterVec
	Payments         *prometheus.CounterVec
	PaymentDedupHits prometheus.Counter
	GatewayLatency   *prometheus.HistogramVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			CodesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_codes_sent_total",
				Help:      "Total verification codes dispatched by outcome.",
			}, []string{"outcome"}),
			CodeSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_code_submissions_total",
				Help:      "Total code submissions by outcome.",
			}, []string{"outcome"}),
			ReviewDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "review_decisions_total",
				Help:      "Total identity and banking review decisions.",
			}, []string{"kind", "decision"}),
			Withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "withdrawals_total",
				Help:      "Total withdrawal requests by stage.",
			}, []string{"stage"}),
			Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_total",
				Help:      "Total payment intents by status transition.",
			}, []string{"status"}),
			PaymentDedupHits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_dedup_hits_total",
				Help:      "Total payment intents answered from an existing session.",
			}),
			GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Latency distribution for payment gateway calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation", "status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.CodesSent,
			metricsInstance.CodeSubmissions,
			metricsInstance.ReviewDecisions,
			metricsInstance.Withdrawals,
			metricsInstance.Payments,
			metricsInstance.PaymentDedupHits,
			metricsInstance.GatewayLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
