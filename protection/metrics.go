package protection

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics agrupa os coletores da camada HTTP. Um *Metrics nil é válido e não
// registra nada, então os middlewares funcionam sem Prometheus (ex: testes).
type Metrics struct {
	requests   *prometheus.HistogramVec
	throttled  prometheus.Counter
	overloaded prometheus.Counter
	evicted    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "protection",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "protection",
			Subsystem: "http",
			Name:      "throttled_total",
			Help:      "Requests rejected by the per-client rate limit.",
		}),
		overloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "protection",
			Subsystem: "http",
			Name:      "overloaded_total",
			Help:      "Requests rejected because the in-flight limit was reached.",
		}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "protection",
			Subsystem: "ratelimit",
			Name:      "clients_evicted_total",
			Help:      "Rate limit buckets dropped, by reason (idle, capacity).",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.requests, m.throttled, m.overloaded, m.evicted)
	return m
}

func (m *Metrics) observe(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, formatInt(status)).Observe(seconds)
}

func (m *Metrics) incThrottled() {
	if m != nil {
		m.throttled.Inc()
	}
}

func (m *Metrics) incOverloaded() {
	if m != nil {
		m.overloaded.Inc()
	}
}

// LimiterEvicted tem a assinatura de infra.EvictionHook.
func (m *Metrics) LimiterEvicted(reason string, n int) {
	if m != nil {
		m.evicted.WithLabelValues(reason).Add(float64(n))
	}
}
