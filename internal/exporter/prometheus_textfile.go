package exporter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/W0rldHacker/health-multi/internal/probe"
	"github.com/W0rldHacker/health-multi/internal/statusx"
)

// PrometheusTextfile renders agg in the Prometheus textfile-collector
// exposition format this program's `export --out prometheus` surface writes
// to stdout. The output is UTF-8, LF-terminated, and ends in a trailing
// newline so promtool and node_exporter's textfile collector both accept
// it unmodified.
//
// This is a hand-rolled writer rather than prometheus/client_golang's
// registry+expfmt path: the optional region label (present only on some
// series) does not fit a GaugeVec's fixed label schema, and the exact
// HELP wording here is part of the wire contract, not free text.
func PrometheusTextfile(agg probe.AggregateResult) []byte {
	results := make([]probe.ServiceSnapshot, len(agg.Results))
	copy(results, agg.Results)
	sort.Slice(results, func(i, j int) bool { return results[i].ServiceName < results[j].ServiceName })

	var b strings.Builder
	b.WriteString("# HELP health_status 1=ok, 0.5=degraded, 0=down\n")
	b.WriteString("# TYPE health_status gauge\n")
	for _, r := range results {
		b.WriteString("health_status")
		writeLabels(&b, r.ServiceName, r.Region)
		b.WriteByte(' ')
		b.WriteString(statusValue(r.Status))
		b.WriteByte('\n')
	}

	b.WriteString("# HELP health_latency_ms last observed latency\n")
	b.WriteString("# TYPE health_latency_ms gauge\n")
	for _, r := range results {
		if r.LatencyMs == nil {
			continue
		}
		b.WriteString("health_latency_ms")
		writeLabels(&b, r.ServiceName, r.Region)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(*r.LatencyMs, 'g', -1, 64))
		b.WriteByte('\n')
	}

	b.WriteString("# HELP health_scrape_timestamp_ms unix epoch ms\n")
	b.WriteString("# TYPE health_scrape_timestamp_ms gauge\n")
	fmt.Fprintf(&b, "health_scrape_timestamp_ms %d\n", agg.CompletedAt.UnixMilli())

	return []byte(b.String())
}

// statusGaugeValue maps a status to the Prometheus gauge value the
// textfile and live exporters both use: 1=ok, 0.5=degraded, 0=down.
func statusGaugeValue(s statusx.Status) float64 {
	switch s {
	case statusx.Ok:
		return 1
	case statusx.Degraded:
		return 0.5
	default:
		return 0
	}
}

func statusValue(s statusx.Status) string {
	return strconv.FormatFloat(statusGaugeValue(s), 'g', -1, 64)
}

func writeLabels(b *strings.Builder, service, region string) {
	b.WriteByte('{')
	b.WriteString(`service="`)
	b.WriteString(escapeLabelValue(service))
	b.WriteByte('"')
	if region != "" {
		b.WriteString(`,region="`)
		b.WriteString(escapeLabelValue(region))
		b.WriteByte('"')
	}
	b.WriteByte('}')
}

// escapeLabelValue applies the three required Prometheus label-value
// escapes, in the order that avoids double-escaping a literal backslash
// introduced by an earlier pass.
func escapeLabelValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
