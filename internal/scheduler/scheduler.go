// Package scheduler implements the jittered periodic clock that drives the
// probe orchestrator's cycle loop. It is a thin wrapper around time.Timer:
// every tick re-arms itself with a freshly jittered delay, and pause/resume
// preserve the residual delay of whatever tick was pending.
package scheduler

import (
	"log"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Handler is invoked once per tick. Handlers run synchronously on the
// scheduler's own goroutine, in registration order; a handler that panics
// is recovered and logged by the scheduler, and the remaining handlers and
// the next tick still run.
type Handler func()

// Scheduler emits tick events at a mean interval of Base with symmetric
// jitter in ±[JitterMin, JitterMax) applied to each delay. It is safe for
// concurrent use: Start, Stop, Pause, Resume, and OnTick may be called from
// any goroutine.
type Scheduler struct {
	Base      time.Duration
	JitterMin float64
	JitterMax float64

	mu       sync.Mutex
	timer    *time.Timer
	running  bool
	paused   bool
	armedAt  time.Time     // when the current/last timer was armed
	plannedD time.Duration // delay the current/last timer was armed with
	residual time.Duration // delay remaining, recorded at Pause
	handlers []Handler
}

// New constructs a Scheduler with the given base interval and jitter band.
// JitterMin and JitterMax default to 0.10 and 0.20 when both are left at
// zero, matching the documented 10%-20% default jitter band.
func New(base time.Duration, jitterMin, jitterMax float64) *Scheduler {
	if jitterMin == 0 && jitterMax == 0 {
		jitterMin, jitterMax = 0.10, 0.20
	}
	return &Scheduler{
		Base:      base,
		JitterMin: jitterMin,
		JitterMax: jitterMax,
	}
}

// OnTick registers handler to run on every subsequent tick. Returns an
// unsubscribe function.
func (s *Scheduler) OnTick(h Handler) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers = append(s.handlers, h)
	idx := len(s.handlers) - 1

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.handlers) {
			s.handlers[idx] = nil
		}
	}
}

// Start arms the first tick immediately. Idempotent: calling Start on an
// already-running scheduler has no effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.paused = false
	s.arm(s.nextDelay())
}

// Stop cancels any pending tick. No further ticks fire until Start is
// called again, which restarts the jitter sequence fresh.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.paused = false
	s.residual = 0
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pause cancels the pending tick but records the residual delay (the
// planned fire time minus now, clamped to zero) so Resume can re-arm with
// the time that was actually left rather than a fresh full interval.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.paused {
		return
	}
	s.paused = true

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	remaining := s.plannedD - time.Since(s.armedAt)
	if remaining < 0 {
		remaining = 0
	}
	s.residual = remaining
}

// Resume re-arms using the residual delay recorded by Pause. If there is
// no residual (Resume called without a prior Pause, or the residual was
// already consumed), it schedules a fresh jittered delay.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || !s.paused {
		return
	}
	s.paused = false

	delay := s.residual
	if delay <= 0 {
		delay = s.nextDelay()
	}
	s.residual = 0
	s.arm(delay)
}

// arm must be called with s.mu held.
func (s *Scheduler) arm(delay time.Duration) {
	s.armedAt = time.Now()
	s.plannedD = delay
	s.timer = time.AfterFunc(delay, s.fire)
}

// fire runs on the timer's own goroutine. It snapshots the handler list,
// invokes each in order, then re-arms the next tick.
func (s *Scheduler) fire() {
	s.mu.Lock()
	if !s.running || s.paused {
		s.mu.Unlock()
		return
	}
	handlers := make([]Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		if h == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("scheduler: tick handler panicked: %v", r)
				}
			}()
			h()
		}()
	}

	s.mu.Lock()
	if s.running && !s.paused {
		s.arm(s.nextDelay())
	}
	s.mu.Unlock()
}

// nextDelay computes base × (1 + sign × magnitude), floored at 1ms and
// rounded to the nearest duration unit, where magnitude is drawn uniformly
// from [JitterMin, JitterMax) and sign is ±1 with equal probability.
func (s *Scheduler) nextDelay() time.Duration {
	lo, hi := s.JitterMin, s.JitterMax
	if lo > hi {
		lo, hi = hi, lo
	}
	magnitude := lo + rand.Float64()*(hi-lo)
	if rand.IntN(2) == 0 {
		magnitude = -magnitude
	}

	d := time.Duration(math.Round(float64(s.Base) * (1 + magnitude)))
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}
