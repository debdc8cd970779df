// Package metrics records per-endpoint latency and errors of the assistant API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Endpoints struct {
	latency  *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	uploaded *prometheus.CounterVec
}

func NewEndpoints(reg prometheus.Registerer) *Endpoints {
	f := promauto.With(reg)
	return &Endpoints{
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "powerdesk",
				Subsystem: "assistant",
				Name:      "latency_seconds",
				Help:      "Latency of assistant endpoints",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "powerdesk",
				Subsystem: "assistant",
				Name:      "errors_total",
				Help:      "Errors by assistant endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		uploaded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "powerdesk",
				Subsystem: "assistant",
				Name:      "datasets_uploaded_total",
				Help:      "Uploaded datasets by kind",
			},
			[]string{"kind"},
		),
	}
}

// Observe records one request. status >= 400 counts as an error.
func (e *Endpoints) Observe(endpoint string, status int, d time.Duration) {
	e.latency.WithLabelValues(endpoint).Observe(d.Seconds())
	if status >= 400 {
		e.errors.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
}

func (e *Endpoints) Uploaded(kind string) {
	e.uploaded.WithLabelValues(kind).Inc()
}
