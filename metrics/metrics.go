// Package metrics counts lookups, relays and live sessions for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/C0nstantin/mailrelay/transport/smtp"
	"github.com/C0nstantin/mailrelay/types"
)

const namespace = "mailrelay"

type Metrics struct {
	registry *prometheus.Registry
	lookups  *prometheus.CounterVec
	relays   *prometheus.CounterVec
	sessions prometheus.Gauge
}

// New registers the collectors on a fresh registry, so several instances can
// live side by side in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Directory searches by result",
		}, []string{"result"}),
		relays: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_total",
			Help:      "Relay attempts by outcome",
		}, []string{"outcome"}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Users with an active selection session",
		}),
	}
	for _, r := range []string{types.LookupFound, types.LookupNotFound, types.LookupTooMany} {
		m.lookups.WithLabelValues(r)
	}
	for _, k := range []smtp.Kind{smtp.Success, smtp.FailureAuthentication, smtp.FailureTransport, smtp.FailureUnexpected} {
		m.relays.WithLabelValues(k.String())
	}
	return m
}

func (m *Metrics) Lookup(result string) { m.lookups.WithLabelValues(result).Inc() }

func (m *Metrics) Relay(kind smtp.Kind) { m.relays.WithLabelValues(kind.String()).Inc() }

func (m *Metrics) Sessions(n int) { m.sessions.Set(float64(n)) }

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
