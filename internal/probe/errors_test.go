package probe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind_ExitCode(t *testing.T) {
	assert.Equal(t, 3, KindUsage.ExitCode())
	assert.Equal(t, 4, KindInternal.ExitCode())
	assert.Equal(t, 0, KindServiceProbe.ExitCode())
	assert.Equal(t, 0, KindServiceExpectation.ExitCode())
	assert.Equal(t, 0, KindRequestTimeout.ExitCode())
}

func TestServiceProbeError_RenderedMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewServiceProbeError("api", "https://api.example.com/health", 2, cause)

	assert.Equal(t, "connection refused (service=api, attempt=2, url=https://api.example.com/health, expected=-)", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestServiceExpectationError_RenderedMessage(t *testing.T) {
	err := NewServiceExpectationError("api", "https://api.example.com/health", 1, "ok", "degraded")
	assert.Equal(t, "Expected ok, received degraded (service=api, attempt=1, url=https://api.example.com/health)", err.Error())
}

func TestRequestTimeoutError(t *testing.T) {
	err := NewRequestTimeoutError(3000)
	assert.Equal(t, KindRequestTimeout, err.Kind)
	assert.Equal(t, int64(3000), err.TimeoutMs)
	assert.Contains(t, err.Error(), "3000ms")
}

func TestUsageAndInternalErrors(t *testing.T) {
	u := NewUsageError("unknown flag --bogus")
	assert.Equal(t, "unknown flag --bogus", u.Error())
	assert.Equal(t, 3, u.Kind.ExitCode())

	i := NewInternalError("observation store invariant violated")
	assert.Equal(t, "observation store invariant violated", i.Error())
	assert.Equal(t, 4, i.Kind.ExitCode())
}
