package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Checkout("stripe", "session")
	m.Checkout("stripe", "session")
	m.Webhook("paypal", "unmatched")
	m.Activation("webhook", "activated")
	m.Swept("listings", 3)
	m.Swept("listings", 0)
	m.PollAttempts(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkouts.WithLabelValues("stripe", "session")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("paypal", "unmatched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activations.WithLabelValues("webhook", "activated")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.swept.WithLabelValues("listings")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Checkout("stripe", "session")
		m.Webhook("stripe", "activated")
		m.Activation("direct", "activated")
		m.Swept("purchases", 1)
		m.PollAttempts(1)
	})
}
