package statusx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Status
		ok   bool
	}{
		{"lowercase ok", "ok", Ok, true},
		{"uppercase down", "DOWN", Down, true},
		{"mixed case with padding", "  Degraded  ", Degraded, true},
		{"unrecognized", "healthy", Unknown, false},
		{"empty", "", Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestComputeAggregateStatus(t *testing.T) {
	tests := []struct {
		name string
		in   []Status
		want Status
	}{
		{"empty is ok", nil, Ok},
		{"all ok", []Status{Ok, Ok}, Ok},
		{"one degraded", []Status{Ok, Degraded, Ok}, Degraded},
		{"one down wins over degraded", []Status{Degraded, Down, Ok}, Down},
		{"order independent", []Status{Down, Degraded, Ok}, Down},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeAggregateStatus(tt.in))
		})
	}
}

func TestComputeAggregateStatus_PermutationInvariant(t *testing.T) {
	perms := [][]Status{
		{Ok, Degraded, Down},
		{Down, Ok, Degraded},
		{Degraded, Down, Ok},
	}
	for _, p := range perms {
		require.Equal(t, Down, ComputeAggregateStatus(p))
	}
}

func TestStatus_ExitCode(t *testing.T) {
	assert.Equal(t, 0, Ok.ExitCode())
	assert.Equal(t, 1, Degraded.ExitCode())
	assert.Equal(t, 2, Down.ExitCode())
}

func TestParseMissingStatusPolicy(t *testing.T) {
	p, ok := ParseMissingStatusPolicy("")
	assert.True(t, ok)
	assert.Equal(t, PolicyDown, p)

	p, ok = ParseMissingStatusPolicy("degraded")
	assert.True(t, ok)
	assert.Equal(t, PolicyDegraded, p)
	assert.Equal(t, Degraded, p.Status())

	_, ok = ParseMissingStatusPolicy("bogus")
	assert.False(t, ok)
}
