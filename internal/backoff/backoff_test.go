package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff_NoJitter(t *testing.T) {
	b := NewExponentialBackoff(200*time.Millisecond, 2, 0, 0, 0)

	assert.Equal(t, 200*time.Millisecond, b.NextDelay())
	assert.Equal(t, 400*time.Millisecond, b.NextDelay())
	assert.Equal(t, 800*time.Millisecond, b.NextDelay())
}

func TestExponentialBackoff_MaxDelayCaps(t *testing.T) {
	b := NewExponentialBackoff(1*time.Second, 2, 3*time.Second, 0, 0)

	assert.Equal(t, 1*time.Second, b.NextDelay())
	assert.Equal(t, 2*time.Second, b.NextDelay())
	assert.Equal(t, 3*time.Second, b.NextDelay()) // would be 4s, capped
	assert.Equal(t, 3*time.Second, b.NextDelay()) // would be 8s, capped
}

func TestExponentialBackoff_Reset(t *testing.T) {
	b := NewExponentialBackoff(200*time.Millisecond, 2, 0, 0, 0)
	b.NextDelay()
	b.NextDelay()
	assert.Equal(t, 2, b.Attempt())

	b.Reset()
	assert.Equal(t, 0, b.Attempt())
	assert.Equal(t, 200*time.Millisecond, b.NextDelay())
}

func TestExponentialBackoff_JitterStaysInBand(t *testing.T) {
	b := NewExponentialBackoff(1*time.Second, 2, 0, 0, 0.3)

	for i := 0; i < 200; i++ {
		d := b.NextDelay()
		assert.GreaterOrEqual(t, d, time.Millisecond)
	}
}

func TestExponentialBackoff_FactorDefaultsWhenInvalid(t *testing.T) {
	b := NewExponentialBackoff(100*time.Millisecond, 0, 0, 0, 0)
	assert.Equal(t, float64(2), b.Factor)

	b = NewExponentialBackoff(100*time.Millisecond, 1, 0, 0, 0)
	assert.Equal(t, float64(2), b.Factor)
}

func TestExponentialBackoff_NeverBelowOneMillisecond(t *testing.T) {
	b := NewExponentialBackoff(0, 2, 0, 0, 0)
	for i := 0; i < 5; i++ {
		assert.GreaterOrEqual(t, b.NextDelay(), time.Millisecond)
	}
}

func TestServiceBackoff_LadderAndIdempotentCeiling(t *testing.T) {
	sb := NewServiceBackoff(4, 2)

	assert.Equal(t, 1, sb.Multiplier("svc-a")) // absent -> 1

	assert.Equal(t, 2, sb.RecordFailure("svc-a"))
	assert.Equal(t, 4, sb.RecordFailure("svc-a"))
	assert.Equal(t, 4, sb.RecordFailure("svc-a")) // idempotent at ceiling
	assert.Equal(t, 4, sb.Multiplier("svc-a"))
}

func TestServiceBackoff_SuccessResets(t *testing.T) {
	sb := NewServiceBackoff(4, 2)
	sb.RecordFailure("svc-a")
	sb.RecordFailure("svc-a")
	require.Equal(t, 4, sb.Multiplier("svc-a"))

	sb.RecordSuccess("svc-a")
	assert.Equal(t, 1, sb.Multiplier("svc-a"))
}

func TestServiceBackoff_ServicesAreIndependent(t *testing.T) {
	sb := NewServiceBackoff(4, 2)
	sb.RecordFailure("svc-a")

	assert.Equal(t, 2, sb.Multiplier("svc-a"))
	assert.Equal(t, 1, sb.Multiplier("svc-b"))
}

func TestServiceBackoff_DefaultsOnInvalidInput(t *testing.T) {
	sb := NewServiceBackoff(0, 0)
	assert.Equal(t, []int{1, 2, 4}, sb.levels)
}
