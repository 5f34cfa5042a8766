package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilReceiverIsSafe(t *testing.T) {
	var m *PaymentMetrics
	m.ObserveProviderCall("create_payment", "success", time.Second)
	m.IncProviderRetry("create_payment")
	m.IncWebhookEvent("payments", "processed")
}

func TestUnregisteredMetricsAreNoops(t *testing.T) {
	m := NewPaymentMetrics(nil)
	m.ObserveProviderCall("create_payment", "success", time.Second)
	m.IncWebhookEvent("payments", "processed")
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.ObserveProviderCall("get_mandate", "success", 10*time.Millisecond)
	m.ObserveProviderCall("get_mandate", "error", 10*time.Millisecond)
	m.IncProviderRetry("get_mandate")
	m.IncWebhookEvent("mandates", "processed")
	m.IncWebhookEvent("mandates", "processed")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.providerRequests.WithLabelValues("get_mandate", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.providerRetries.WithLabelValues("get_mandate")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.webhookEvents.WithLabelValues("mandates", "processed")))
}
