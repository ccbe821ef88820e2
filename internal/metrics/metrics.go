// Package metrics exposes Prometheus collectors for payments, donations and
// HTTP traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "athena"

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeDeclined = "declined"
	OutcomeError    = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	Payments        *prometheus.CounterVec
	PaymentDuration *prometheus.HistogramVec
	Donations       *prometheus.CounterVec
	DonationAmount  *prometheus.CounterVec
	Subscriptions   *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
}

// New creates a registry with process/Go collectors and the service collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Gateway calls by provider, operation and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		PaymentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_duration_seconds",
			Help:      "Gateway call latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 1.5, 2, 3, 5},
		}, []string{"provider", "operation"}),
		Donations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "donations_total",
			Help:      "Recorded donations by method and status.",
		}, []string{"method", "status"}),
		DonationAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "donation_amount_minor_total",
			Help:      "Sum of recorded donation amounts in minor units.",
		}, []string{"currency"}),
		Subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_transitions_total",
			Help:      "Subscription status changes by target status.",
		}, []string{"status"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code class.",
		}, []string{"method", "code"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Payments, m.PaymentDuration, m.Donations, m.DonationAmount, m.Subscriptions, m.HTTPRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePayment records one gateway call. A nil receiver is a no-op.
func (m *Metrics) ObservePayment(provider, operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Payments.WithLabelValues(provider, operation, outcome).Inc()
	m.PaymentDuration.WithLabelValues(provider, operation).Observe(took.Seconds())
}

// ObserveDonation records a donation status change.
func (m *Metrics) ObserveDonation(method, status, currency string, amount int64) {
	if m == nil {
		return
	}
	m.Donations.WithLabelValues(method, status).Inc()
	if status == "completed" {
		m.DonationAmount.WithLabelValues(currency).Add(float64(amount))
	}
}

// ObserveSubscription records a subscription reaching status.
func (m *Metrics) ObserveSubscription(status string) {
	if m == nil {
		return
	}
	m.Subscriptions.WithLabelValues(status).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, codeClass(code)).Inc()
}

func codeClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
