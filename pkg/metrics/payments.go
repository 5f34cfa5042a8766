package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records provider-call and webhook-processing metadata.
type PaymentMetrics struct {
	providerDuration *prometheus.HistogramVec
	providerRequests *prometheus.CounterVec
	providerRetries  *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	providerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gocardless_request_duration_seconds",
		Help:    "Duration of GoCardless API calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	providerRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gocardless_requests_total",
		Help: "GoCardless API calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	providerRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gocardless_request_retries_total",
		Help: "Retried GoCardless API attempts by operation.",
	}, []string{"operation"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gocardless_webhook_events_total",
		Help: "Webhook events by resource type and result.",
	}, []string{"resource_type", "result"})
	reg.MustRegister(providerDuration, providerRequests, providerRetries, webhookEvents)
	return &PaymentMetrics{
		providerDuration: providerDuration,
		providerRequests: providerRequests,
		providerRetries:  providerRetries,
		webhookEvents:    webhookEvents,
	}
}

// ObserveProviderCall records one finished provider call.
func (m *PaymentMetrics) ObserveProviderCall(operation, outcome string, duration time.Duration) {
	if m == nil || m.providerRequests == nil {
		return
	}
	m.providerDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.providerRequests.WithLabelValues(operation, outcome).Inc()
}

// IncProviderRetry counts a retried provider attempt.
func (m *PaymentMetrics) IncProviderRetry(operation string) {
	if m == nil || m.providerRetries == nil {
		return
	}
	m.providerRetries.WithLabelValues(operation).Inc()
}

// IncWebhookEvent counts a processed/failed/skipped webhook event.
func (m *PaymentMetrics) IncWebhookEvent(resourceType, result string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(resourceType, result).Inc()
}
