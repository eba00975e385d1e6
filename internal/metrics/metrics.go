// Package metrics holds the prometheus collectors for the codec, the
// renderers, the store and the HTTP gateway. Everything is registered on a
// private registry so tests can create as many as they like.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/internal/render"
)

const namespace = "assessmaker"

// Metrics owns the registry and every collector.
type Metrics struct {
	registry *prometheus.Registry

	codecOps      *prometheus.CounterVec
	codecDuration *prometheus.HistogramVec
	renderTime    *prometheus.HistogramVec
	imageFailures prometheus.Counter
	skipped       *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// New registers the collectors. runtime adds the Go and process collectors.
func New(runtime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if runtime {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg.MustRegister(collectors.NewGoCollector())
	}

	m := &Metrics{
		registry: reg,
		codecOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "codec_operations_total",
			Help: "Field codec operations by op and result.",
		}, []string{"op", "result"}),
		codecDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "codec_duration_seconds",
			Help:    "Field codec operation latency, including key derivation.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"}),
		renderTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "render_duration_seconds",
			Help:    "Document render latency by format.",
			Buckets: prometheus.DefBuckets,
		}, []string{"format"}),
		imageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "render_image_failures_total",
			Help: "PoC images replaced by a placeholder during rendering.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_skipped_records_total",
			Help: "Records skipped by bulk reads because they could not be decoded.",
		}, []string{"entity"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Gateway requests by route pattern and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(m.codecOps, m.codecDuration, m.renderTime, m.imageFailures, m.skipped, m.httpRequests)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CodecObserver is installed with fieldcrypt.WithObserver.
func (m *Metrics) CodecObserver() fieldcrypt.Observer {
	return func(op string, err error, elapsed time.Duration) {
		result := "ok"
		switch {
		case errors.Is(err, fieldcrypt.ErrMalformedCiphertext):
			result = "malformed"
		case err != nil:
			result = "error"
		}
		m.codecOps.WithLabelValues(op, result).Inc()
		m.codecDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}

// SkipObserver is installed with store.WithSkipObserver.
func (m *Metrics) SkipObserver() func(fieldcrypt.Entity) {
	return func(e fieldcrypt.Entity) {
		m.skipped.WithLabelValues(string(e)).Inc()
	}
}

// ObserveRender matches export.Observer.
func (m *Metrics) ObserveRender(format string, elapsed time.Duration, d *render.Document, err error) {
	m.renderTime.WithLabelValues(format).Observe(elapsed.Seconds())
	if err == nil && d != nil {
		m.imageFailures.Add(float64(d.ImageFailures()))
	}
}

// ObserveHTTP counts one request.
func (m *Metrics) ObserveHTTP(route string, code int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
