package exporter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/W0rldHacker/health-multi/internal/probe"
)

// LiveMetrics is a scrapeable Prometheus endpoint that mirrors the
// textfile exporter's three gauges, kept current by calling Update once per
// completed cycle (wire it to Orchestrator.OnAggregate). It is the `run`
// command's optional counterpart to `export --out prometheus`'s one-shot output:
// a long-running process can expose the same numbers over HTTP instead
// of re-writing a file on a cron.
type LiveMetrics struct {
	registry  *prometheus.Registry
	status    *prometheus.GaugeVec
	latency   *prometheus.GaugeVec
	scrapedAt prometheus.Gauge
}

// NewLiveMetrics builds a fresh registry with the health_status,
// health_latency_ms and health_scrape_timestamp_ms gauges registered.
func NewLiveMetrics() *LiveMetrics {
	reg := prometheus.NewRegistry()

	status := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_status",
		Help: "1=ok, 0.5=degraded, 0=down",
	}, []string{"service", "region"})

	latency := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_latency_ms",
		Help: "last observed latency",
	}, []string{"service", "region"})

	scrapedAt := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "health_scrape_timestamp_ms",
		Help: "unix epoch ms",
	})

	reg.MustRegister(status, latency, scrapedAt)

	return &LiveMetrics{registry: reg, status: status, latency: latency, scrapedAt: scrapedAt}
}

// Update replaces every series with the values from the latest cycle.
// Stale services (removed from the fleet, or never yet probed) are not
// carried forward: the gauge vectors are reset before the new values are
// set, so a service that stops appearing in agg.Results stops appearing
// in the scrape output too.
func (m *LiveMetrics) Update(agg probe.AggregateResult) {
	m.status.Reset()
	m.latency.Reset()

	for _, r := range agg.Results {
		labels := prometheus.Labels{"service": r.ServiceName, "region": r.Region}
		m.status.With(labels).Set(statusGaugeValue(r.Status))
		if r.LatencyMs != nil {
			m.latency.With(labels).Set(*r.LatencyMs)
		}
	}
	m.scrapedAt.Set(float64(agg.CompletedAt.UnixMilli()))
}

// Handler returns the /metrics http.Handler serving this registry.
func (m *LiveMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
