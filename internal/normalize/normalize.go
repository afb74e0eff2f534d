// Package normalize implements the probe response normalizer: mapping an
// HTTP status code and JSON payload to the status vocabulary, and
// resolving a probe's reported or measured latency.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/W0rldHacker/health-multi/internal/probe"
	"github.com/W0rldHacker/health-multi/internal/statusx"
)

// Status maps {httpStatus, payload, missingStatusPolicy} to a normalized
// Status:
//
//  1. An httpStatus outside [200,299] is always Down.
//  2. Else, a recognizable payload.status (case-insensitive, trimmed)
//     wins.
//  3. Else, the missing-status policy's status applies.
func Status(httpStatus int, payload map[string]any, policy statusx.MissingStatusPolicy) statusx.Status {
	if httpStatus < 200 || httpStatus > 299 {
		return statusx.Down
	}

	if raw, ok := payloadString(payload, "status"); ok {
		if s, ok := statusx.Parse(raw); ok {
			return s
		}
	}

	return policy.Status()
}

// Latency resolves a probe's latency and timing breakdown, preferring a
// payload-reported timings.total_ms over the measured wall-clock latency.
// measuredLatencyMs is a pointer so "no measurement taken" and "measured
// zero" are distinguishable; a nil result timings means no breakdown was
// reported.
func Latency(payload map[string]any, measuredLatencyMs *float64) (latencyMs float64, timings *probe.Timings) {
	if t, ok := payloadTimings(payload); ok {
		return t.TotalMs, t
	}
	if measuredLatencyMs != nil {
		return *measuredLatencyMs, nil
	}
	return 0, nil
}

func payloadTimings(payload map[string]any) (*probe.Timings, bool) {
	raw, ok := payload["timings"]
	if !ok {
		return nil, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}

	total, ok := numeric(m["total_ms"])
	if !ok {
		return nil, false
	}

	t := &probe.Timings{TotalMs: total}
	if v, ok := numeric(m["ttfb_ms"]); ok {
		t.TTFBMs = &v
	}
	if v, ok := numeric(m["dns_ms"]); ok {
		t.DNSMs = &v
	}
	if v, ok := numeric(m["tcp_ms"]); ok {
		t.TCPMs = &v
	}
	if v, ok := numeric(m["tls_ms"]); ok {
		t.TLSMs = &v
	}
	return t, true
}

// numeric coerces a decoded JSON value to a finite float64, accepting both
// a native number and a numeric string — the spec's "finite number or a
// numeric string" clause for timings fields.
func numeric(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func payloadString(payload map[string]any, key string) (string, bool) {
	if payload == nil {
		return "", false
	}
	raw, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		return "", false
	}
	return s, true
}
