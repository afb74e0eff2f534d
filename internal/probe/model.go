// Package probe defines the data model shared across the probe pipeline:
// the declarative Service and Parameters inputs, and the Observation and
// AggregateResult outputs that the store, exporters, and TUI all consume.
package probe

import (
	"time"

	"github.com/W0rldHacker/health-multi/internal/statusx"
)

// Service is one entry in the declarative fleet. It is immutable after
// load; the orchestrator holds the canonical list for the lifetime of a
// run.
type Service struct {
	// Name identifies the service. Non-empty, unique within the fleet.
	Name string

	// URL is the absolute http: or https: health-check endpoint.
	URL string

	// ExpectStatus, when set, is compared against the normalized status;
	// a mismatch produces a ServiceExpectationError.
	ExpectStatus string

	// Tags is an unordered set of labels. The exporters do not render them.
	Tags []string

	// Headers overlay Parameters.Headers for this service only.
	// Case-insensitive name -> value.
	Headers map[string]string

	// Proxy, when set, overrides Parameters.Proxy and environment-derived
	// proxy resolution for this service.
	Proxy string

	// Timeout overrides Parameters.Timeout for this service when non-zero.
	Timeout time.Duration
}

// Parameters holds the process-wide, immutable-after-construction
// configuration for a run.
type Parameters struct {
	Interval            time.Duration
	Timeout             time.Duration
	Retries             int
	Concurrency         int
	Headers             map[string]string
	Proxy               string
	Insecure            bool
	Debug               bool
	MissingStatusPolicy statusx.MissingStatusPolicy
	OutputFormat        string
}

// DefaultParameters returns the documented defaults: 15s interval, 3s
// timeout, 1 retry, concurrency 10, missing-status policy "down".
func DefaultParameters() Parameters {
	return Parameters{
		Interval:            15 * time.Second,
		Timeout:             3 * time.Second,
		Retries:             1,
		Concurrency:         10,
		MissingStatusPolicy: statusx.PolicyDown,
	}
}

// Timings carries the sub-measurements of a single HTTP round trip.
// TotalMs is always present when Timings is non-nil; the rest are best
// effort, populated either from a payload-reported breakdown or from
// httptrace instrumentation.
type Timings struct {
	TotalMs float64
	TTFBMs  *float64
	DNSMs   *float64
	TCPMs   *float64
	TLSMs   *float64
}

// Observation is a single probe's outcome record, as stored in a
// service's ring buffer.
type Observation struct {
	ServiceName string
	Status      statusx.Status
	HTTPStatus  *int
	LatencyMs   *float64
	Timings     *Timings
	CheckedAt   time.Time
	Payload     map[string]any
	Err         error
	Version     string
	Region      string
}

// LatencyPercentiles holds the p50/p95/p99 latency, in milliseconds,
// computed over a cycle's finite-latency observations. Empty is true when
// no observation carried a latency.
type LatencyPercentiles struct {
	P50, P95, P99 float64
	Empty         bool
}

// ServiceSnapshot is one service's contribution to an AggregateResult: its
// latest observation plus derived metadata.
type ServiceSnapshot struct {
	Observation
	AgeMs float64

	// Multiplier is the service's current backoff ladder position (1 when
	// healthy, widening on consecutive Down results). Populated by the
	// orchestrator after aggregation; the store itself has no backoff
	// awareness.
	Multiplier int
}

// AggregateResult is the derived summary emitted once per completed cycle.
type AggregateResult struct {
	Status      statusx.Status
	Results     []ServiceSnapshot
	StartedAt   time.Time
	CompletedAt time.Time
	Latency     LatencyPercentiles
}
