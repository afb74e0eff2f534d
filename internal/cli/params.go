package cli

import (
	"fmt"

	"github.com/W0rldHacker/health-multi/internal/config"
	"github.com/W0rldHacker/health-multi/internal/probe"
	"github.com/W0rldHacker/health-multi/internal/statusx"
)

// resolveParameters builds the effective Parameters and Service list for a
// run: starting from config.Load's result when --config is set (or
// probe.DefaultParameters with an empty fleet otherwise), then overlaying
// every flag the caller explicitly set. Flags always win over the file.
func resolveParameters(f Flags) (probe.Parameters, []probe.Service, error) {
	params := probe.DefaultParameters()
	var services []probe.Service

	if f.Config != "" {
		var err error
		params, services, err = config.Load(f.Config)
		if err != nil {
			return probe.Parameters{}, nil, err
		}
	}

	if f.Interval != "" {
		d, err := statusx.ParseDuration(f.Interval)
		if err != nil {
			return probe.Parameters{}, nil, probe.NewUsageError(fmt.Sprintf("--interval: %s", err))
		}
		params.Interval = d
	}
	if f.Timeout != "" {
		d, err := statusx.ParseDuration(f.Timeout)
		if err != nil {
			return probe.Parameters{}, nil, probe.NewUsageError(fmt.Sprintf("--timeout: %s", err))
		}
		params.Timeout = d
	}
	if f.RetriesSet {
		params.Retries = f.Retries
	}
	if f.ConcurrencySet {
		params.Concurrency = f.Concurrency
	}
	if f.Proxy != "" {
		params.Proxy = f.Proxy
	}
	if len(f.Headers) > 0 {
		overlay := headersMap(f.Headers)
		if params.Headers == nil {
			params.Headers = overlay
		} else {
			for k, v := range overlay {
				params.Headers[k] = v
			}
		}
	}
	if f.MissingStatus != "" {
		policy, _ := statusx.ParseMissingStatusPolicy(f.MissingStatus)
		params.MissingStatusPolicy = policy
	}
	if f.Insecure {
		params.Insecure = true
	}
	if f.Debug {
		params.Debug = true
	}
	if f.Out != "" {
		params.OutputFormat = f.Out
	}

	if len(services) == 0 {
		return probe.Parameters{}, nil, probe.NewUsageError("no services configured: pass --config with a services list")
	}

	return params, services, nil
}
