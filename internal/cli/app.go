package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/W0rldHacker/health-multi/internal/backoff"
	"github.com/W0rldHacker/health-multi/internal/exporter"
	"github.com/W0rldHacker/health-multi/internal/gate"
	"github.com/W0rldHacker/health-multi/internal/logging"
	"github.com/W0rldHacker/health-multi/internal/orchestrator"
	"github.com/W0rldHacker/health-multi/internal/probe"
	"github.com/W0rldHacker/health-multi/internal/probehttp"
	"github.com/W0rldHacker/health-multi/internal/scheduler"
	"github.com/W0rldHacker/health-multi/internal/store"
	"github.com/W0rldHacker/health-multi/internal/tui"
)

// version is the string `--version` prints. It is a constant, so it cannot
// be overridden at link time.
const version = "0.1.0"

const usage = `health-multi: monitors a fleet of HTTP services and reports aggregate health.

Usage:
  health-multi run    --config <path> [flags]
  health-multi check  --config <path> [flags]
  health-multi export --config <path> --out <json|ndjson|prometheus> [flags]
  health-multi help

Flags:
  --config <path>            configuration file (YAML or JSON)
  --interval <duration>      probe interval, e.g. 15s, 500ms, 2m
  --timeout <duration>       per-request timeout
  --retries <int>            retry attempts per probe (>= 0)
  --concurrency <int>        max in-flight probes (>= 0)
  --proxy <url>              proxy URL for all services
  --headers 'Name: Value'    extra header, repeatable
  --missing-status <degraded|down>  policy when a payload omits status
  --out <json|ndjson|prometheus>    export format (export command only)
  --metrics-addr <host:port> serve live Prometheus metrics (run command only)
  --insecure                 skip TLS certificate verification
  --debug                    verbose request tracing
  --help, -h                 show this message
  --version, -v              show the version
`

// Run is the process entry point's sole collaborator: it parses args,
// dispatches to the requested command, and returns the process exit code
// per the documented exit-code contract. It never calls os.Exit itself,
// so it is fully testable.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 3
	}

	command := args[0]
	rest := args[1:]

	switch command {
	case "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "run", "check", "export":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 3
	}

	flags, err := parseFlags(command, rest)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCodeForErr(err)
	}
	if flags.Help {
		fmt.Fprint(stdout, usage)
		return 0
	}
	if flags.Version {
		fmt.Fprintln(stdout, version)
		return 0
	}

	params, services, err := resolveParameters(flags)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCodeForErr(err)
	}

	if command == "export" && flags.Out == "" {
		err := probe.NewUsageError("export requires --out <json|ndjson|prometheus>")
		fmt.Fprintln(stderr, err)
		return exitCodeForErr(err)
	}

	logger, err := logging.New(logging.Options{Debug: params.Debug})
	if err != nil {
		err := probe.NewInternalError(fmt.Sprintf("logging setup: %s", err))
		fmt.Fprintln(stderr, err)
		return exitCodeForErr(err)
	}

	orch, layer := build(params, services)
	defer layer.Close()

	switch command {
	case "check":
		return runCheck(orch, stdout)
	case "export":
		return runExport(orch, services, flags.Out, stdout, stderr)
	case "run":
		return runDashboard(orch, services, params, flags.MetricsAddr, logger, stdout, stderr)
	}

	return 4
}

// build assembles the shared collaborator set every command needs: a
// never-firing scheduler (commands that don't need ticking simply never
// call Start), the concurrency gate, HTTP layer, observation store, and
// service backoff ladder.
func build(params probe.Parameters, services []probe.Service) (*orchestrator.Orchestrator, *probehttp.Layer) {
	sched := scheduler.New(params.Interval, 0, 0)
	g := gate.New(params.Concurrency)
	layer := probehttp.NewLayer(probehttp.DefaultPoolConfig(), probehttp.DefaultBreakerConfig())
	st := store.New(64)
	sb := backoff.NewServiceBackoff(8, 2)

	orch := orchestrator.New(services, params, sched, g, layer, st, sb)
	return orch, layer
}

func exitCodeForErr(err error) int {
	if pe, ok := err.(*probe.Error); ok {
		code := pe.ExitCode()
		if code != 0 {
			return code
		}
		return 4
	}
	return 4
}

// runCheck runs exactly one cycle and exits with the status-derived code.
func runCheck(orch *orchestrator.Orchestrator, stdout io.Writer) int {
	agg := orch.RunCycle(context.Background())
	out, err := exporter.JSON(agg, nil)
	if err != nil {
		fmt.Fprintln(stdout, err)
		return 4
	}
	stdout.Write(out)
	return agg.Status.ExitCode()
}

// runExport runs exactly one cycle and renders it in the requested format.
func runExport(orch *orchestrator.Orchestrator, services []probe.Service, format string, stdout, stderr io.Writer) int {
	agg := orch.RunCycle(context.Background())

	var out []byte
	var err error
	switch format {
	case "json":
		out, err = exporter.JSON(agg, services)
	case "ndjson":
		out, err = exporter.NDJSON(agg, services)
	case "prometheus":
		out = exporter.PrometheusTextfile(agg)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 4
	}
	stdout.Write(out)
	return agg.Status.ExitCode()
}

// runDashboard starts the recurring scheduler and drives the TUI until the
// user quits or the process receives SIGINT/SIGTERM, at which point it
// stops the scheduler and returns. A cycle already in flight is not
// canceled; Run closes the keep-alive pool after this returns.
// When metricsAddr is non-empty, it also mounts a live Prometheus /metrics
// endpoint kept current by the same OnAggregate subscription the TUI uses.
func runDashboard(orch *orchestrator.Orchestrator, services []probe.Service, params probe.Parameters, metricsAddr string, logger zerolog.Logger, stdout, stderr io.Writer) int {
	logger.Info().Int("services", len(services)).Dur("interval", params.Interval).Msg("starting dashboard")

	updates := make(chan probe.AggregateResult, 1)
	orch.OnAggregate(func(agg probe.AggregateResult) {
		select {
		case updates <- agg:
		default:
			<-updates
			updates <- agg
		}
	})

	var metricsServer *http.Server
	if metricsAddr != "" {
		live := exporter.NewLiveMetrics()
		orch.OnAggregate(live.Update)

		mux := http.NewServeMux()
		mux.Handle("/metrics", live.Handler())
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Str("addr", metricsAddr).Msg("metrics server")
			}
		}()
		logger.Info().Str("addr", metricsAddr).Msg("serving live metrics")
	}

	model := tui.New(services, params.Interval, updates, orch.Scheduler, nil)
	program := tea.NewProgram(model)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			program.Quit()
		case <-done:
		}
	}()

	orch.Scheduler.Start()
	_, err := program.Run()
	close(done)
	orch.Scheduler.Stop()

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(ctx)
	}

	if err != nil {
		fmt.Fprintln(stderr, err)
		return 4
	}
	return 0
}
