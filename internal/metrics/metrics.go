// Package metrics счётчики prometheus для оформления, вебхуков, активаций и фоновой очистки.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "muhub"

// Metrics набор счётчиков сервиса. Методы безопасно вызывать на nil.
type Metrics struct {
	checkouts   *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
	activations *prometheus.CounterVec
	swept       *prometheus.CounterVec
	polls       prometheus.Histogram
}

// New регистрирует счётчики в reg. Для HTTP-сервера используется prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		checkouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by provider and result.",
		}, []string{"provider", "result"}),
		webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook events by provider and audit status.",
		}, []string{"provider", "status"}),
		activations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Draft activations by source and result.",
		}, []string{"source", "result"}),
		swept: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_expired_total",
			Help:      "Rows expired by the background sweep.",
		}, []string{"target"}),
		polls: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "access_poll_attempts",
			Help:      "Polling attempts before the access gate reported a result.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
	}
}

func (m *Metrics) Checkout(provider, result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) Webhook(provider, status string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) Activation(source, result string) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(source, result).Inc()
}

func (m *Metrics) Swept(target string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.WithLabelValues(target).Add(float64(n))
}

func (m *Metrics) PollAttempts(n int) {
	if m == nil {
		return
	}
	m.polls.Observe(float64(n))
}
