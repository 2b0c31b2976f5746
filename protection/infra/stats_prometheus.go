package infra

import (
	"context"
	"strconv"

	"protection-relay/protection/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStats expõe os eventos de atualização como métricas.
type PrometheusStats struct {
	updates  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	price    *prometheus.GaugeVec
}

// NewPrometheusStats registra os coletores em reg. Passe
// prometheus.DefaultRegisterer para servir via promhttp.Handler().
func NewPrometheusStats(reg prometheus.Registerer) *PrometheusStats {
	s := &PrometheusStats{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "protection",
			Name:      "price_updates_total",
			Help:      "Remote price update attempts by mode, outcome and remote status.",
		}, []string{"mode", "outcome", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "protection",
			Name:      "price_update_duration_seconds",
			Help:      "Time spent waiting for the variant lock plus the remote call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "protection",
			Name:      "variant_price",
			Help:      "Last price successfully written to each variant.",
		}, []string{"variant_id"}),
	}
	reg.MustRegister(s.updates, s.duration, s.price)
	return s
}

func (s *PrometheusStats) Record(_ context.Context, ev domain.UpdateEvent) error {
	outcome := "failure"
	if ev.Success {
		outcome = "success"
		f, _ := ev.Price.Round(2).Float64()
		s.price.WithLabelValues(ev.VariantID).Set(f)
	}
	s.updates.WithLabelValues(string(ev.Mode), outcome, strconv.Itoa(ev.Status)).Inc()
	s.duration.WithLabelValues(string(ev.Mode)).Observe(ev.Duration.Seconds())
	return nil
}
