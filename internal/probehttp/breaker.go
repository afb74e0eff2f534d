package probehttp

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// errSyntheticFailure marks a response that classifyFailure flagged as a
// breaker failure despite a nil transport error (a non-2xx/3xx status).
// It never escapes Execute: the caller always sees the real response with
// a nil error, exactly as if no breaker were present.
var errSyntheticFailure = errors.New("probehttp: non-2xx/3xx response")

// classifyFailure reports whether resp/err should count against the
// breaker: any transport error, or a response whose status falls outside
// 2xx/3xx. net/http's client.Do returns a nil error for every HTTP
// response regardless of status code, so without this the breaker would
// never see a consistently-failing 5xx service as unhealthy.
func classifyFailure(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode < 200 || resp.StatusCode >= 400
}

// BreakerConfig configures the per-service circuit breaker guarding
// outbound probes. Defaults mirror a conservative, fast-recovering local
// breaker: a handful of consecutive failures opens the circuit, and a
// short timeout lets it try a half-open probe again soon after.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
	FailureRatio        float64
}

// DefaultBreakerConfig returns the defaults used when a run does not
// override them.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
	}
}

// breakerRegistry lazily builds one gobreaker.CircuitBreaker per service
// name, so once a consistently failing service's breaker opens its probes
// fail fast without dialing, while healthy services are unaffected. A
// rejected probe still holds its gate slot and is retried like any other
// transport error.
type breakerRegistry struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
}

func newBreakerRegistry(cfg BreakerConfig) *breakerRegistry {
	return &breakerRegistry{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
	}
}

func (r *breakerRegistry) forService(name string) *gobreaker.CircuitBreaker[*http.Response] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: r.cfg.MaxRequests,
		Interval:    r.cfg.Interval,
		Timeout:     r.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if r.cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= r.cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests >= 10 && r.cfg.FailureRatio > 0 {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= r.cfg.FailureRatio
			}
			return false
		},
	})
	r.breakers[name] = cb
	return cb
}

// Execute runs fn through name's circuit breaker. gobreaker.ErrOpenState
// is returned verbatim when the breaker is open, letting callers recognize
// it distinctly from a probe-time failure. A response classified as a
// failure by classifyFailure (network error or non-2xx/3xx status) counts
// against the breaker even though fn itself returned a nil error; the
// caller still receives the real response and a nil error back.
func (r *breakerRegistry) Execute(name string, fn func() (*http.Response, error)) (*http.Response, error) {
	resp, err := r.forService(name).Execute(func() (*http.Response, error) {
		resp, err := fn()
		if classifyFailure(resp, err) {
			if err != nil {
				return resp, err
			}
			return resp, errSyntheticFailure
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, errSyntheticFailure) {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}
