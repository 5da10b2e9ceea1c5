// Package metrics holds the Prometheus collectors for the trading client.
//
// Exposed series:
//   - tradeclient_orders_total{kind,side,outcome}
//   - tradeclient_rejections_total{reason}
//   - tradeclient_cache_reads_total{result}    hit|miss|stale
//   - tradeclient_refetches_total{outcome}
//   - tradeclient_price_polls_total{outcome}
//   - tradeclient_order_transitions_total{kind,to}
//   - tradeclient_holds                       open reservation holds
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradeclient"

type Metrics struct {
	registry    *prometheus.Registry
	orders      *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	cacheReads  *prometheus.CounterVec
	refetches   *prometheus.CounterVec
	pricePolls  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	holds       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_total",
				Help:      "Order submissions by kind, side and outcome",
			},
			[]string{"kind", "side", "outcome"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Client-side validation rejections by reason",
			},
			[]string{"reason"},
		),
		cacheReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_reads_total",
				Help:      "Cached reads by result (hit, miss, stale)",
			},
			[]string{"result"},
		),
		refetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refetches_total",
				Help:      "Forced refetches after a mutation by outcome",
			},
			[]string{"outcome"},
		),
		pricePolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_polls_total",
				Help:      "Price lookups by outcome",
			},
			[]string{"outcome"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_transitions_total",
				Help:      "Observed limit and stop order transitions",
			},
			[]string{"kind", "to"},
		),
		holds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "holds",
				Help:      "Open optimistic reservation holds",
			},
		),
	}
	m.registry.MustRegister(
		m.orders, m.rejections, m.cacheReads, m.refetches,
		m.pricePolls, m.transitions, m.holds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Order(kind, side, outcome string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(kind, side, outcome).Inc()
}

func (m *Metrics) Rejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheRead(result string) {
	if m == nil {
		return
	}
	m.cacheReads.WithLabelValues(result).Inc()
}

func (m *Metrics) Refetch(outcome string) {
	if m == nil {
		return
	}
	m.refetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PricePoll(outcome string) {
	if m == nil {
		return
	}
	m.pricePolls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Transition(kind, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, to).Inc()
}

func (m *Metrics) Holds(n int) {
	if m == nil {
		return
	}
	m.holds.Set(float64(n))
}
