// Package exporter renders an AggregateResult into the three wire formats
// this program emits: pretty JSON, NDJSON, and the Prometheus textfile
// exposition format.
package exporter

import (
	"bytes"
	"time"

	json "github.com/goccy/go-json"

	"github.com/W0rldHacker/health-multi/internal/probe"
	"github.com/W0rldHacker/health-multi/internal/redact"
)

// resultDTO is one service's entry in the JSON/NDJSON result array.
type resultDTO struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	LatencyMs *float64 `json:"latency_ms,omitempty"`
	Version   string   `json:"version,omitempty"`
	Region    string   `json:"region,omitempty"`
	CheckedAt string   `json:"checked_at,omitempty"`
	URL       string   `json:"url,omitempty"`
}

type jsonDocument struct {
	Aggregate string      `json:"aggregate"`
	CheckedAt string      `json:"checked_at"`
	Results   []resultDTO `json:"results"`
}

// JSON renders agg as the pretty-printed document the `export --out json`
// and `check` surfaces emit: 2-space indent, trailing newline. services
// supplies the URL each result is annotated with, redacted via
// redact.URL.
func JSON(agg probe.AggregateResult, services []probe.Service) ([]byte, error) {
	doc := jsonDocument{
		Aggregate: agg.Status.String(),
		CheckedAt: isoTime(agg.CompletedAt),
		Results:   buildResults(agg, services),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NDJSON renders agg as one result object per line, omitting the
// aggregate wrapper. A fleet with no results yields an empty document
// (zero lines), not an empty array literal.
func NDJSON(agg probe.AggregateResult, services []probe.Service) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range buildResults(agg, services) {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func buildResults(agg probe.AggregateResult, services []probe.Service) []resultDTO {
	urlByName := make(map[string]string, len(services))
	for _, svc := range services {
		urlByName[svc.Name] = redact.URL(svc.URL)
	}

	results := make([]resultDTO, 0, len(agg.Results))
	for _, snap := range agg.Results {
		dto := resultDTO{
			Name:    snap.ServiceName,
			Status:  snap.Status.String(),
			Version: snap.Version,
			Region:  snap.Region,
			URL:     urlByName[snap.ServiceName],
		}
		if snap.LatencyMs != nil {
			dto.LatencyMs = snap.LatencyMs
		}
		if !snap.CheckedAt.IsZero() {
			dto.CheckedAt = isoTime(snap.CheckedAt)
		}
		results = append(results, dto)
	}
	return results
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
