package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oracle"

type Metrics struct {
	Mutations       *prometheus.CounterVec   // component, op, result
	Resolutions     *prometheus.CounterVec   // result
	ResolveDuration *prometheus.HistogramVec // op
	SourceSkips     *prometheus.CounterVec   // oracle, reason
	EventsPublished *prometheus.CounterVec   // sink, result
	PriceAge        *prometheus.GaugeVec     // asset
	PriceFresh      *prometheus.GaugeVec     // asset
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Admin mutations by component, operation and result.",
		}, []string{"component", "op", "result"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Aggregator price resolutions by result.",
		}, []string{"result"}),
		ResolveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Time spent resolving aggregator prices.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		SourceSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_skips_total",
			Help:      "Oracle candidates skipped during resolution.",
		}, []string{"oracle", "reason"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to sinks by result.",
		}, []string{"sink", "result"}),
		PriceAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_age_seconds",
			Help:      "Age of the resolved aggregator price at the last freshness check.",
		}, []string{"asset"}),
		PriceFresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_fresh",
			Help:      "1 when the asset resolved at the last freshness check, 0 otherwise.",
		}, []string{"asset"}),
	}

	if reg != nil {
		reg.MustRegister(m.Mutations, m.Resolutions, m.ResolveDuration, m.SourceSkips, m.EventsPublished, m.PriceAge, m.PriceFresh)
	}
	return m
}

// Handler serves g, the default registry when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
