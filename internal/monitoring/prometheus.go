package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "viral"

// Prometheus owns a private registry so tests can create as many as they like.
type Prometheus struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Predictions     *prometheus.CounterVec
	Probability     prometheus.Histogram
	CacheLookups    *prometheus.CounterVec
	RateLimited     prometheus.Counter
	ExternalCalls   *prometheus.CounterVec
	ModelLoaded     prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions by method and category.",
		}, []string{"method", "category"}),
		Probability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_probability",
			Help:      "Distribution of final viral probabilities.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		ExternalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Calls to external collaborators by outcome.",
		}, []string{"api", "outcome"}),
		ModelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 when a model snapshot is serving, 0 in rule-based mode.",
		}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.Requests,
		p.RequestDuration,
		p.Predictions,
		p.Probability,
		p.CacheLookups,
		p.RateLimited,
		p.ExternalCalls,
		p.ModelLoaded,
	)
	return p
}

// Handler exposes the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) ObserveRequest(method, route string, status int, duration time.Duration) {
	p.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (p *Prometheus) ObservePrediction(method, category string, probability float64) {
	p.Predictions.WithLabelValues(method, category).Inc()
	p.Probability.Observe(probability)
}

func (p *Prometheus) SetModelLoaded(loaded bool) {
	if loaded {
		p.ModelLoaded.Set(1)
	} else {
		p.ModelLoaded.Set(0)
	}
}
