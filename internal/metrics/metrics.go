// Package metrics содержит метрики Prometheus сервиса.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bookstore"

// Metrics объединяет HTTP-метрики и метрики оформления покупок.
// Методы безопасно вызывать у nil.
type Metrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
	Checkouts *prometheus.CounterVec
	BooksSold prometheus.Counter

	gatherer prometheus.Gatherer
}

// New создаёт метрики и регистрирует их в reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchase",
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		BooksSold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchase",
			Name:      "books_sold_total",
			Help:      "Total quantity of books sold.",
		}),
		gatherer: reg,
	}

	reg.MustRegister(m.Requests, m.LatencyMS, m.Checkouts, m.BooksSold)
	return m
}

// ObserveRequest учитывает один обработанный HTTP-запрос.
func (m *Metrics) ObserveRequest(route string, status int, durationMS float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(durationMS)
}

// CheckoutCompleted учитывает успешную покупку и количество проданных книг.
func (m *Metrics) CheckoutCompleted(quantity int) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues("success").Inc()
	m.BooksSold.Add(float64(quantity))
}

// CheckoutRejected учитывает отклонённую покупку.
func (m *Metrics) CheckoutRejected(reason string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(reason).Inc()
}

// Handler отдаёт метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
