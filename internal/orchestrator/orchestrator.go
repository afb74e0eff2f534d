// Package orchestrator ties the scheduler, concurrency gate, retry
// harness, HTTP layer, normalizer, and observation store into the probe
// cycle: the integration point of the whole pipeline.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/W0rldHacker/health-multi/internal/backoff"
	"github.com/W0rldHacker/health-multi/internal/gate"
	"github.com/W0rldHacker/health-multi/internal/normalize"
	"github.com/W0rldHacker/health-multi/internal/probe"
	"github.com/W0rldHacker/health-multi/internal/probehttp"
	"github.com/W0rldHacker/health-multi/internal/retry"
	"github.com/W0rldHacker/health-multi/internal/scheduler"
	"github.com/W0rldHacker/health-multi/internal/statusx"
	"github.com/W0rldHacker/health-multi/internal/store"
)

// State is a service's position in the Idle -> InFlight -> {Healthy,
// Unhealthy} -> Idle state machine.
type State int

const (
	Idle State = iota
	InFlight
	Healthy
	Unhealthy
)

// Orchestrator is the cooperative single logical task that issues
// concurrent probe jobs on each scheduler tick and reduces their results
// to an AggregateResult.
type Orchestrator struct {
	services []probe.Service
	params   probe.Parameters

	Scheduler *scheduler.Scheduler
	Gate      *gate.Gate
	Layer     *probehttp.Layer
	Store     *store.Store
	Backoff   *backoff.ServiceBackoff

	mu          sync.Mutex
	countdown   map[string]int
	state       map[string]State
	cycleActive bool

	subMu       sync.Mutex
	subscribers []func(probe.AggregateResult)
}

// New constructs an Orchestrator. The caller retains ownership of every
// collaborator and is responsible for starting the scheduler and closing
// the layer's keep-alive pool on shutdown.
func New(
	services []probe.Service,
	params probe.Parameters,
	sched *scheduler.Scheduler,
	g *gate.Gate,
	layer *probehttp.Layer,
	st *store.Store,
	sb *backoff.ServiceBackoff,
) *Orchestrator {
	o := &Orchestrator{
		services:  services,
		params:    params,
		Scheduler: sched,
		Gate:      g,
		Layer:     layer,
		Store:     st,
		Backoff:   sb,
		countdown: make(map[string]int),
		state:     make(map[string]State),
	}
	sched.OnTick(func() { o.runCycle(context.Background()) })
	return o
}

// OnAggregate registers a subscriber invoked once per completed cycle with
// its AggregateResult. Subscribers run synchronously on the orchestrator's
// goroutine, so a slow subscriber (e.g. a file-writing exporter) delays
// the next tick's handler return, not the cycle itself — ticks are
// coalesced, not queued, per the cycle-overlap rule.
func (o *Orchestrator) OnAggregate(fn func(probe.AggregateResult)) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	o.subscribers = append(o.subscribers, fn)
}

// RunCycle runs exactly one cycle synchronously, bypassing the scheduler.
// Used by the `check` one-shot surface, which needs a single cycle's
// result without starting a recurring tick.
func (o *Orchestrator) RunCycle(ctx context.Context) probe.AggregateResult {
	return o.doCycle(ctx)
}

// runCycle is the scheduler tick handler. If a previous cycle is still
// running, this tick is coalesced (dropped) per the forbidden-overlap
// rule; the next tick is awaited instead.
func (o *Orchestrator) runCycle(ctx context.Context) {
	o.mu.Lock()
	if o.cycleActive {
		o.mu.Unlock()
		return
	}
	o.cycleActive = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.cycleActive = false
		o.mu.Unlock()
	}()

	agg := o.doCycle(ctx)
	o.publish(agg)
}

func (o *Orchestrator) publish(agg probe.AggregateResult) {
	o.subMu.Lock()
	subs := make([]func(probe.AggregateResult), len(o.subscribers))
	copy(subs, o.subscribers)
	o.subMu.Unlock()

	for _, fn := range subs {
		fn(agg)
	}
}

func (o *Orchestrator) doCycle(ctx context.Context) probe.AggregateResult {
	startedAt := time.Now()

	due := o.dueServices()

	var wg sync.WaitGroup
	for _, svc := range due {
		svc := svc
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = o.Gate.Run(ctx, func(ctx context.Context) error {
				obs := o.probeOne(ctx, svc)
				o.complete(svc, obs)
				return nil
			})
		}()
	}
	wg.Wait()

	o.tickCountdowns(due)

	completedAt := time.Now()
	agg := store.Aggregate(o.Store, startedAt, completedAt)
	for i := range agg.Results {
		agg.Results[i].Multiplier = o.Backoff.Multiplier(agg.Results[i].ServiceName)
	}
	return agg
}

// dueServices returns the services whose per-service countdown has
// reached zero — i.e. every service not currently being skipped by its
// backoff multiplier's interval widening.
func (o *Orchestrator) dueServices() []probe.Service {
	o.mu.Lock()
	defer o.mu.Unlock()

	due := make([]probe.Service, 0, len(o.services))
	for _, svc := range o.services {
		if o.countdown[svc.Name] > 0 {
			continue
		}
		due = append(due, svc)
		o.state[svc.Name] = InFlight
	}
	return due
}

// tickCountdowns decrements every other service's countdown (services not
// probed this cycle) and is a no-op for services that were just probed —
// their countdown was freshly set in complete().
func (o *Orchestrator) tickCountdowns(probed []probe.Service) {
	o.mu.Lock()
	defer o.mu.Unlock()

	probedSet := make(map[string]bool, len(probed))
	for _, svc := range probed {
		probedSet[svc.Name] = true
	}
	for name, n := range o.countdown {
		if probedSet[name] {
			continue
		}
		if n > 0 {
			o.countdown[name] = n - 1
		}
	}
}

// complete applies one service's observation to shared state: appends it
// to the store, updates the service backoff and state machine, and arms
// its countdown when the multiplier widened the effective interval.
func (o *Orchestrator) complete(svc probe.Service, obs probe.Observation) {
	o.Store.Add(obs)

	o.mu.Lock()
	defer o.mu.Unlock()

	switch obs.Status {
	case statusx.Ok:
		o.Backoff.RecordSuccess(svc.Name)
		o.state[svc.Name] = Healthy
		o.countdown[svc.Name] = 0
	case statusx.Down:
		mult := o.Backoff.RecordFailure(svc.Name)
		o.state[svc.Name] = Unhealthy
		o.countdown[svc.Name] = mult - 1
	default: // degraded: keep previous multiplier, no state change to the ladder
		o.state[svc.Name] = Unhealthy
		mult := o.Backoff.Multiplier(svc.Name)
		o.countdown[svc.Name] = mult - 1
	}
}

// effectiveHeaders overlays service headers over the default headers over
// nothing; per spec, "service overlays default overlays global".
func effectiveHeaders(defaults, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

func effectiveTimeout(global, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return global
}

// probeOne runs the retry harness around a single service's probe,
// producing an Observation regardless of outcome — errors never escape to
// sibling services.
func (o *Orchestrator) probeOne(ctx context.Context, svc probe.Service) probe.Observation {
	timeout := effectiveTimeout(o.params.Timeout, svc.Timeout)
	headers := effectiveHeaders(o.params.Headers, svc.Headers)
	proxy := svc.Proxy
	if proxy == "" {
		proxy = o.params.Proxy
	}

	var obs probe.Observation
	eb := backoff.NewExponentialBackoff(200*time.Millisecond, 2, 30*time.Second, 0, 0.2)

	_ = retry.Do(ctx, func(ctx context.Context, attempt int) error {
		checkedAt := time.Now()
		resp, err := o.Layer.Do(ctx, probehttp.Request{
			ServiceName: svc.Name,
			URL:         svc.URL,
			Headers:     headers,
			Timeout:     timeout,
			Proxy:       proxy,
			Insecure:    o.params.Insecure,
			Debug:       o.params.Debug,
		})
		measured := time.Since(checkedAt).Seconds() * 1000

		if err != nil {
			obs = downObservation(svc.Name, svc.URL, attempt, checkedAt, err)
			return err
		}

		var payload map[string]any
		if jsonErr := json.Unmarshal(resp.Body, &payload); jsonErr != nil {
			obs = downObservation(svc.Name, svc.URL, attempt, checkedAt, jsonErr)
			return nil // parse failure is a terminal probe failure, not retried
		}

		status := normalize.Status(resp.StatusCode, payload, o.params.MissingStatusPolicy)
		latencyMs, timings := normalize.Latency(payload, &measured)

		obs = probe.Observation{
			ServiceName: svc.Name,
			Status:      status,
			HTTPStatus:  &resp.StatusCode,
			LatencyMs:   &latencyMs,
			Timings:     timings,
			CheckedAt:   checkedAt,
			Payload:     payload,
			Version:     stringField(payload, "version"),
			Region:      stringField(payload, "region"),
		}
		if svc.ExpectStatus != "" && status.String() != svc.ExpectStatus {
			obs.Err = probe.NewServiceExpectationError(svc.Name, svc.URL, attempt, svc.ExpectStatus, status.String())
		}
		return nil
	}, retry.Options{
		Retries: o.params.Retries,
		Backoff: eb,
	})

	return obs
}

// downObservation builds the Down observation recorded for a probe attempt
// that never produced a usable response. cause is wrapped in a
// ServiceProbeError so a RequestTimeoutError (and every other transport
// failure) carries its service/attempt/url context through to the store
// and the exporters' rendered message.
func downObservation(name, url string, attempt int, checkedAt time.Time, cause error) probe.Observation {
	return probe.Observation{
		ServiceName: name,
		Status:      statusx.Down,
		CheckedAt:   checkedAt,
		Err:         probe.NewServiceProbeError(name, url, attempt, cause),
	}
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
