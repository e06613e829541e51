package catalog

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	cacheLookups     *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelview",
			Subsystem: "catalog",
			Name:      "cache_lookups_total",
			Help:      "Catalog cache lookups by outcome",
		}, []string{"op", "result"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelview",
			Subsystem: "catalog",
			Name:      "upstream_failures_total",
			Help:      "Upstream catalog calls that degraded to an empty response",
		}, []string{"op"}),
	}
	if registerer == nil {
		return m
	}
	m.cacheLookups = registerCounter(registerer, m.cacheLookups)
	m.upstreamFailures = registerCounter(registerer, m.upstreamFailures)
	return m
}

func registerCounter(registerer prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) cacheLookup(op string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.With(prometheus.Labels{"op": op, "result": result}).Inc()
}

func (m *metrics) upstreamFailure(op string) {
	m.upstreamFailures.With(prometheus.Labels{"op": op}).Inc()
}
