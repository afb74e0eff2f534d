// Package store implements the per-service bounded observation history and
// the aggregator that reduces it to a fleet-wide AggregateResult.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/W0rldHacker/health-multi/internal/probe"
	"github.com/W0rldHacker/health-multi/internal/statusx"
)

// Store holds a capacity-bounded, FIFO-ordered sequence of observations
// per service. It is the orchestrator's single-writer state: only cycle
// completion appends to it, but GetHistory/GetLatest may be called
// concurrently from any reader (the TUI, an exporter) since they always
// return a copy.
type Store struct {
	mu       sync.RWMutex
	capacity int
	services map[string][]probe.Observation
}

// New constructs a Store with the given per-service capacity. capacity
// must be greater than zero.
func New(capacity int) *Store {
	return &Store{
		capacity: capacity,
		services: make(map[string][]probe.Observation),
	}
}

// Add appends obs to its service's sequence, dropping the oldest entry
// when the sequence would exceed capacity.
func (s *Store) Add(obs probe.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.services[obs.ServiceName]
	seq = append(seq, obs)
	if len(seq) > s.capacity {
		seq = seq[len(seq)-s.capacity:]
	}
	s.services[obs.ServiceName] = seq
}

// GetHistory returns a copy of name's full retained sequence, oldest
// first.
func (s *Store) GetHistory(name string) []probe.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.services[name]
	out := make([]probe.Observation, len(seq))
	copy(out, seq)
	return out
}

// GetLatest returns name's most recent observation, or false if name has
// no observations yet.
func (s *Store) GetLatest(name string) (probe.Observation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.services[name]
	if len(seq) == 0 {
		return probe.Observation{}, false
	}
	return seq[len(seq)-1], true
}

// ServiceNames returns the names of every service with at least one
// observation, in no particular order.
func (s *Store) ServiceNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.services))
	for name, seq := range s.services {
		if len(seq) > 0 {
			names = append(names, name)
		}
	}
	return names
}

// Aggregate reduces the store's current latest-observation-per-service
// view to an AggregateResult for a cycle spanning [startedAt, completedAt].
func Aggregate(s *Store, startedAt, completedAt time.Time) probe.AggregateResult {
	names := s.ServiceNames()
	sort.Strings(names)

	results := make([]probe.ServiceSnapshot, 0, len(names))
	statuses := make([]statusx.Status, 0, len(names))
	latencies := make([]float64, 0, len(names))

	for _, name := range names {
		latest, ok := s.GetLatest(name)
		if !ok {
			continue
		}

		age := completedAt.Sub(latest.CheckedAt).Seconds() * 1000
		if age < 0 {
			age = 0
		}

		results = append(results, probe.ServiceSnapshot{
			Observation: latest,
			AgeMs:       age,
		})
		statuses = append(statuses, latest.Status)

		if latest.LatencyMs != nil {
			latencies = append(latencies, *latest.LatencyMs)
		}
	}

	return probe.AggregateResult{
		Status:      statusx.ComputeAggregateStatus(statuses),
		Results:     results,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Latency:     percentiles(latencies),
	}
}

// percentiles computes p50/p95/p99 over samples, sorting ascending and
// linearly interpolating at position p×(n-1), per the spec's percentile
// method. An empty input yields an empty LatencyPercentiles.
func percentiles(samples []float64) probe.LatencyPercentiles {
	if len(samples) == 0 {
		return probe.LatencyPercentiles{Empty: true}
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return probe.LatencyPercentiles{
		P50: interpolate(sorted, 0.50),
		P95: interpolate(sorted, 0.95),
		P99: interpolate(sorted, 0.99),
	}
}

func interpolate(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}

	pos := p * float64(len(sorted)-1)
	lower := int(pos)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	frac := pos - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*frac
}
