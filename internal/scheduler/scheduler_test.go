package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_TicksFireRepeatedly(t *testing.T) {
	s := New(10*time.Millisecond, 0, 0.1)

	var ticks int32
	s.OnTick(func() {
		atomic.AddInt32(&ticks, 1)
	})

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ticks) >= 3
	}, time.Second, time.Millisecond)
}

func TestScheduler_StopPreventsFurtherTicks(t *testing.T) {
	s := New(10*time.Millisecond, 0, 0.1)

	var ticks int32
	s.OnTick(func() {
		atomic.AddInt32(&ticks, 1)
	})

	s.Start()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ticks) >= 1
	}, time.Second, time.Millisecond)

	s.Stop()
	after := atomic.LoadInt32(&ticks)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&ticks))
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	s := New(time.Hour, 0, 0.1)
	s.Start()
	firstTimer := s.timer
	s.Start()
	assert.Same(t, firstTimer, s.timer)
	s.Stop()
}

func TestScheduler_PauseRecordsResidualAndResumeUsesIt(t *testing.T) {
	s := New(time.Hour, 0, 0) // long base: tick should never fire on its own during this test
	s.Start()
	defer s.Stop()
	planned := s.plannedD

	time.Sleep(20 * time.Millisecond)
	s.Pause()

	residual := s.residual
	assert.Greater(t, residual, time.Duration(0))
	assert.Less(t, residual, planned)

	s.Resume()
	assert.Equal(t, residual, s.plannedD)
}

func TestScheduler_ResumeWithoutPriorPauseIsNoOp(t *testing.T) {
	s := New(10*time.Millisecond, 0, 0.1)
	s.Resume() // never started, never paused
	assert.False(t, s.running)
}

func TestScheduler_PauseThenStopClearsResidual(t *testing.T) {
	s := New(time.Hour, 0, 0)
	s.Start()
	s.Pause()
	s.Stop()
	assert.Equal(t, time.Duration(0), s.residual)
	assert.False(t, s.running)
}

func TestScheduler_UnsubscribeStopsHandler(t *testing.T) {
	s := New(10*time.Millisecond, 0, 0.1)

	var ticks int32
	unsubscribe := s.OnTick(func() {
		atomic.AddInt32(&ticks, 1)
	})

	s.Start()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ticks) >= 1
	}, time.Second, time.Millisecond)

	unsubscribe()
	after := atomic.LoadInt32(&ticks)
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	assert.Equal(t, after, atomic.LoadInt32(&ticks))
}

func TestScheduler_NextDelay_NeverBelowOneMillisecond(t *testing.T) {
	s := New(0, 0, 0.2)
	for i := 0; i < 50; i++ {
		assert.GreaterOrEqual(t, s.nextDelay(), time.Millisecond)
	}
}

func TestScheduler_NextDelay_DefaultsJitterBand(t *testing.T) {
	s := New(time.Second, 0, 0)
	assert.InDelta(t, 0.10, s.JitterMin, 1e-9)
	assert.InDelta(t, 0.20, s.JitterMax, 1e-9)
}
