package probe

import "fmt"

// ErrorKind tags which branch of the error taxonomy an Error belongs to.
// Dispatch on Kind rather than on a type hierarchy, per the tagged-variant
// design used throughout this package.
type ErrorKind int

const (
	KindUsage ErrorKind = iota
	KindServiceProbe
	KindServiceExpectation
	KindRequestTimeout
	KindInternal
)

// ExitCode maps a kind to the process exit code contract: usage errors
// exit 3, internal errors exit 4. Probe-level kinds have no exit code of
// their own — a one-shot run's exit code always derives from the aggregate
// status, never from the presence of a per-service error.
func (k ErrorKind) ExitCode() int {
	switch k {
	case KindUsage:
		return 3
	case KindInternal:
		return 4
	default:
		return 0
	}
}

// Error is the single concrete error type used across the core. Every
// kind of failure — bad flags, a failed probe, a timeout, an internal
// invariant violation — is one of these, distinguished by Kind.
type Error struct {
	Kind ErrorKind

	// Message is the human-readable summary. For KindServiceProbe it is
	// combined with the context fields below by Error() into the rendered
	// message shape the spec requires; KindServiceExpectation renders from
	// Expected, Actual and the context fields alone.
	Message string

	// ServiceName, Attempt, URL, Expected, Actual are populated for the
	// service-scoped kinds (KindServiceProbe, KindServiceExpectation).
	ServiceName string
	Attempt     int
	URL         string
	Expected    string
	Actual      string

	// TimeoutMs is populated for KindRequestTimeout.
	TimeoutMs int64

	// Cause is the underlying error, if any. Unwrap returns it.
	Cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServiceProbe:
		msg := e.Message
		if msg == "" && e.Cause != nil {
			msg = e.Cause.Error()
		}
		expected := e.Expected
		if expected == "" {
			expected = "-"
		}
		return fmt.Sprintf("%s (service=%s, attempt=%d, url=%s, expected=%s)",
			msg, e.ServiceName, e.Attempt, e.URL, expected)
	case KindServiceExpectation:
		return fmt.Sprintf("Expected %s, received %s (service=%s, attempt=%d, url=%s)",
			e.Expected, e.Actual, e.ServiceName, e.Attempt, e.URL)
	default:
		if e.Cause != nil && e.Message == "" {
			return e.Cause.Error()
		}
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewUsageError builds a KindUsage error for bad flags, unknown commands,
// malformed durations, and config schema violations.
func NewUsageError(message string) *Error {
	return &Error{Kind: KindUsage, Message: message}
}

// NewServiceProbeError wraps a per-cycle, non-fatal probe failure with the
// context the rendered message needs.
func NewServiceProbeError(serviceName, url string, attempt int, cause error) *Error {
	return &Error{
		Kind:        KindServiceProbe,
		ServiceName: serviceName,
		URL:         url,
		Attempt:     attempt,
		Cause:       cause,
	}
}

// NewServiceExpectationError builds the error used when a probe succeeded
// but its normalized status differs from the service's ExpectStatus.
func NewServiceExpectationError(serviceName, url string, attempt int, expected, actual string) *Error {
	return &Error{
		Kind:        KindServiceExpectation,
		ServiceName: serviceName,
		URL:         url,
		Attempt:     attempt,
		Expected:    expected,
		Actual:      actual,
	}
}

// NewRequestTimeoutError builds the internal timeout error the HTTP layer
// raises when a request's deadline elapses. Orchestrator code always
// promotes this to a ServiceProbeError at the cycle boundary before it
// reaches an Observation.
func NewRequestTimeoutError(timeoutMs int64) *Error {
	return &Error{
		Kind:      KindRequestTimeout,
		Message:   fmt.Sprintf("request timed out after %dms", timeoutMs),
		TimeoutMs: timeoutMs,
	}
}

// NewInternalError builds a KindInternal error for invariant violations
// inside the core — conditions that should be unreachable given a valid
// configuration.
func NewInternalError(message string) *Error {
	return &Error{Kind: KindInternal, Message: message}
}
