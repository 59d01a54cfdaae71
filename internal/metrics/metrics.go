package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dispatch engine's Prometheus instruments on a
// service-local registry.
type Metrics struct {
	registry *prometheus.Registry

	EmailsSent      prometheus.Counter
	EmailsFailed    prometheus.Counter
	BatchesRun      prometheus.Counter
	ActiveCampaigns prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EmailsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "campaign_emails_sent_total",
			Help: "Advertisement emails delivered successfully.",
		}),
		EmailsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "campaign_emails_failed_total",
			Help: "Advertisement delivery attempts that failed at the gateway.",
		}),
		BatchesRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "campaign_batches_total",
			Help: "Dispatcher batch invocations.",
		}),
		ActiveCampaigns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "campaign_active",
			Help: "Campaigns currently pending or sending.",
		}),
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
