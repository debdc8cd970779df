package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics on Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	analyses     *prometheus.CounterVec
	llmTokens    *prometheus.CounterVec
	llmCache     *prometheus.CounterVec
}

// New registers the collectors on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerdesk_prices_sent_total",
				Help: "Market price ticks delivered to the storage backend",
			},
			[]string{"backend", "region"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerdesk_errors_total",
				Help: "Errors by kind",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "powerdesk_last_price",
				Help: "Last observed price per region",
			},
			[]string{"region"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "powerdesk_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		analyses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerdesk_analyses_total",
				Help: "Analyses produced by kind and result",
			},
			[]string{"kind", "result"},
		),
		llmTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerdesk_llm_tokens_total",
				Help: "Tokens consumed by direction",
			},
			[]string{"provider", "model", "direction"},
		),
		llmCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerdesk_llm_cache_total",
				Help: "LLM response cache lookups",
			},
			[]string{"result"},
		),
	}
}

func (r *Recorder) RecordMessageSent(backend, region string) {
	r.messagesSent.WithLabelValues(backend, region).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(region string, price float64) {
	r.lastPrice.WithLabelValues(region).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordAnalysis(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.analyses.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) RecordTokens(provider, model string, prompt, completion int64) {
	r.llmTokens.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	r.llmTokens.WithLabelValues(provider, model, "completion").Add(float64(completion))
}

func (r *Recorder) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.llmCache.WithLabelValues(result).Inc()
}
