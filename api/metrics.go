package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ErmitaVulpe/cookbook/cdn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one server in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	transactions *prometheus.CounterVec
	uploadBytes  prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cookbook",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Handled HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cookbook",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Time spent handling HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	m.transactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cookbook",
		Subsystem: "cdn",
		Name:      "transactions_total",
		Help:      "Asset store transactions by outcome.",
	}, []string{"outcome"})

	m.uploadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cookbook",
		Subsystem: "cdn",
		Name:      "upload_bytes",
		Help:      "Size of uploaded images before normalization.",
		Buckets:   prometheus.ExponentialBuckets(4<<10, 4, 8),
	})

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.transactions,
		m.uploadBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(route, method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) observeTransaction(err error) {
	m.transactions.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) observeUpload(size int) {
	m.uploadBytes.Observe(float64(size))
}

// outcome names the result of a transaction for metric labels.
func outcome(err error) string {
	switch kind := cdn.KindOf(err); {
	case kind == nil:
		return "committed"
	case errors.Is(kind, cdn.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(kind, cdn.ErrRecipeDoesntExist):
		return "recipe_doesnt_exist"
	case errors.Is(kind, cdn.ErrImageDoesntExist):
		return "image_doesnt_exist"
	case errors.Is(kind, cdn.ErrUnsupportedImageFormat):
		return "unsupported_image_format"
	case errors.Is(kind, cdn.ErrInvalidName):
		return "invalid_name"
	default:
		return "internal_error"
	}
}
