// Package cli implements the command-line surface: flag parsing, command
// dispatch, and the wiring that assembles the core's collaborators
// (scheduler, gate, HTTP layer, store, backoff, orchestrator) from a
// parsed configuration and set of flag overrides.
package cli

import (
	"flag"
	"fmt"
	"strings"

	"github.com/W0rldHacker/health-multi/internal/probe"
	"github.com/W0rldHacker/health-multi/internal/statusx"
)

// headerList accumulates repeated --headers 'Name: Value' flags.
type headerList []string

func (h *headerList) String() string {
	if h == nil {
		return ""
	}
	return strings.Join(*h, ",")
}

func (h *headerList) Set(value string) error {
	*h = append(*h, value)
	return nil
}

// Flags holds every flag value recognized across the run/check/export
// commands, before validation or materialization into probe.Parameters.
type Flags struct {
	Config         string
	Interval       string
	Timeout        string
	Retries        int
	RetriesSet     bool
	Concurrency    int
	ConcurrencySet bool
	Proxy          string
	Headers        headerList
	MissingStatus  string
	Out            string
	MetricsAddr    string
	Insecure       bool
	Debug          bool
	Help           bool
	Version        bool
}

// parseFlags parses args (excluding the command word) into a Flags value.
// It never calls flag.Parse on flag.CommandLine and never os.Exits on
// error, so callers can translate a parse failure into the usage-error
// exit code uniformly.
func parseFlags(command string, args []string) (Flags, error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(&discardWriter{})

	var f Flags
	fs.StringVar(&f.Config, "config", "", "")
	fs.StringVar(&f.Interval, "interval", "", "")
	fs.StringVar(&f.Timeout, "timeout", "", "")
	fs.StringVar(&f.Proxy, "proxy", "", "")
	fs.Var(&f.Headers, "headers", "")
	fs.StringVar(&f.MissingStatus, "missing-status", "", "")
	fs.StringVar(&f.Out, "out", "", "")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", "", "")
	fs.BoolVar(&f.Insecure, "insecure", false, "")
	fs.BoolVar(&f.Debug, "debug", false, "")
	fs.BoolVar(&f.Help, "help", false, "")
	fs.BoolVar(&f.Help, "h", false, "")
	fs.BoolVar(&f.Version, "version", false, "")
	fs.BoolVar(&f.Version, "v", false, "")

	retries := fs.Int("retries", -1, "")
	concurrency := fs.Int("concurrency", -1, "")

	if err := fs.Parse(args); err != nil {
		return Flags{}, probe.NewUsageError(fmt.Sprintf("invalid flags: %s", err))
	}

	if *retries >= 0 {
		f.Retries, f.RetriesSet = *retries, true
	} else if *retries < -1 {
		return Flags{}, probe.NewUsageError("--retries must be >= 0")
	}
	if *concurrency >= 0 {
		f.Concurrency, f.ConcurrencySet = *concurrency, true
	} else if *concurrency < -1 {
		return Flags{}, probe.NewUsageError("--concurrency must be >= 0")
	}

	for _, h := range f.Headers {
		if _, _, err := splitHeader(h); err != nil {
			return Flags{}, err
		}
	}

	if f.MissingStatus != "" {
		if _, ok := statusx.ParseMissingStatusPolicy(f.MissingStatus); !ok {
			return Flags{}, probe.NewUsageError(fmt.Sprintf("--missing-status must be 'degraded' or 'down', got %q", f.MissingStatus))
		}
	}

	switch f.Out {
	case "", "json", "ndjson", "prometheus":
	default:
		return Flags{}, probe.NewUsageError(fmt.Sprintf("--out must be 'json', 'ndjson' or 'prometheus', got %q", f.Out))
	}

	return f, nil
}

// splitHeader parses a 'Name: Value' flag value. The separator is the
// first colon; the name must be non-empty once trimmed.
func splitHeader(raw string) (name, value string, err error) {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return "", "", probe.NewUsageError(fmt.Sprintf("--headers value %q must contain a ':' separator", raw))
	}
	name = strings.TrimSpace(raw[:idx])
	value = strings.TrimSpace(raw[idx+1:])
	if name == "" {
		return "", "", probe.NewUsageError(fmt.Sprintf("--headers value %q has an empty name", raw))
	}
	return name, value, nil
}

// headersMap converts a headerList into a name -> value map, assuming
// every entry has already passed splitHeader validation.
func headersMap(headers headerList) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		name, value, _ := splitHeader(h)
		out[name] = value
	}
	return out
}

// discardWriter swallows the flag package's own usage/error output; this
// package renders its own usage text instead.
type discardWriter struct{}

func (*discardWriter) Write(p []byte) (int, error) { return len(p), nil }
