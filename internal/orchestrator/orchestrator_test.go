package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/W0rldHacker/health-multi/internal/backoff"
	"github.com/W0rldHacker/health-multi/internal/gate"
	"github.com/W0rldHacker/health-multi/internal/probe"
	"github.com/W0rldHacker/health-multi/internal/probehttp"
	"github.com/W0rldHacker/health-multi/internal/scheduler"
	"github.com/W0rldHacker/health-multi/internal/statusx"
	"github.com/W0rldHacker/health-multi/internal/store"
)

func newTestOrchestrator(t *testing.T, services []probe.Service, params probe.Parameters) *Orchestrator {
	t.Helper()
	sched := scheduler.New(time.Hour, 0, 0) // never fires on its own
	g := gate.New(params.Concurrency)
	layer := probehttp.NewLayer(probehttp.DefaultPoolConfig(), probehttp.DefaultBreakerConfig())
	layer.LookupEnv = func(string) (string, bool) { return "", false }
	st := store.New(10)
	sb := backoff.NewServiceBackoff(4, 2)

	return New(services, params, sched, g, layer, st, sb)
}

func TestOrchestrator_HealthySingleService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","timings":{"total_ms":12},"version":"1.0.0"}`))
	}))
	defer srv.Close()

	services := []probe.Service{{Name: "api", URL: srv.URL}}
	params := probe.Parameters{Timeout: time.Second, Retries: 1, Concurrency: 10, MissingStatusPolicy: statusx.PolicyDown}

	o := newTestOrchestrator(t, services, params)
	agg := o.RunCycle(context.Background())

	assert.Equal(t, statusx.Ok, agg.Status)
	require.Len(t, agg.Results, 1)
	assert.Equal(t, "1.0.0", agg.Results[0].Version)
	require.NotNil(t, agg.Results[0].LatencyMs)
	assert.Equal(t, 12.0, *agg.Results[0].LatencyMs)
}

func TestOrchestrator_MissingStatusUsesPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"version":"2.0.0"}`))
	}))
	defer srv.Close()

	services := []probe.Service{{Name: "api", URL: srv.URL}}
	params := probe.Parameters{Timeout: time.Second, Retries: 0, Concurrency: 10, MissingStatusPolicy: statusx.PolicyDegraded}

	o := newTestOrchestrator(t, services, params)
	agg := o.RunCycle(context.Background())

	assert.Equal(t, statusx.Degraded, agg.Status)
}

func TestOrchestrator_DroppedConnectionBecomesDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"`)) // truncated, malformed JSON
	}))
	defer srv.Close()

	services := []probe.Service{{Name: "api", URL: srv.URL}}
	params := probe.Parameters{Timeout: time.Second, Retries: 0, Concurrency: 10, MissingStatusPolicy: statusx.PolicyDown}

	o := newTestOrchestrator(t, services, params)
	agg := o.RunCycle(context.Background())

	assert.Equal(t, statusx.Down, agg.Status)
	require.Len(t, agg.Results, 1)
	assert.Error(t, agg.Results[0].Err)
}

func TestOrchestrator_FleetMixedStatusAggregatesToDown(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ok.Close()
	degraded := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer degraded.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	services := []probe.Service{
		{Name: "api", URL: ok.URL},
		{Name: "auth", URL: degraded.URL},
		{Name: "search", URL: down.URL},
	}
	params := probe.Parameters{Timeout: time.Second, Retries: 0, Concurrency: 10, MissingStatusPolicy: statusx.PolicyDown}

	o := newTestOrchestrator(t, services, params)
	agg := o.RunCycle(context.Background())

	assert.Equal(t, statusx.Down, agg.Status)
	require.Len(t, agg.Results, 3)
}

func TestOrchestrator_DownEscalatesBackoffAndSkipsSubsequentCycles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	services := []probe.Service{{Name: "api", URL: srv.URL}}
	params := probe.Parameters{Timeout: time.Second, Retries: 0, Concurrency: 10, MissingStatusPolicy: statusx.PolicyDown}

	o := newTestOrchestrator(t, services, params)

	agg := o.RunCycle(context.Background())
	assert.Equal(t, statusx.Down, agg.Status)
	assert.Equal(t, 2, o.Backoff.Multiplier("api")) // first failure -> multiplier 2

	// Next cycle's tick should skip the now-backed-off service: dueServices
	// returns nothing for it, so the store gets no new observation and the
	// history length is unchanged.
	before := len(o.Store.GetHistory("api"))
	_ = o.doCycle(context.Background())
	after := len(o.Store.GetHistory("api"))
	assert.Equal(t, before, after)
}

func TestOrchestrator_RecoveryResetsMultiplier(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	services := []probe.Service{{Name: "api", URL: srv.URL}}
	params := probe.Parameters{Timeout: time.Second, Retries: 0, Concurrency: 10, MissingStatusPolicy: statusx.PolicyDown}

	o := newTestOrchestrator(t, services, params)

	healthy = false
	o.RunCycle(context.Background())
	require.Equal(t, 2, o.Backoff.Multiplier("api"))

	// Drain the countdown by running cycles until the service is due again.
	for i := 0; i < 5; i++ {
		o.doCycle(context.Background())
	}

	healthy = true
	o.doCycle(context.Background())
	assert.Equal(t, 1, o.Backoff.Multiplier("api"))
}

func TestOrchestrator_ExpectStatusMismatchProducesExpectationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer srv.Close()

	services := []probe.Service{{Name: "api", URL: srv.URL, ExpectStatus: "ok"}}
	params := probe.Parameters{Timeout: time.Second, Retries: 0, Concurrency: 10, MissingStatusPolicy: statusx.PolicyDown}

	o := newTestOrchestrator(t, services, params)
	agg := o.RunCycle(context.Background())

	require.Len(t, agg.Results, 1)
	// the observation itself still reflects the real status; only the
	// attached error signals the mismatch against ExpectStatus.
	assert.Equal(t, statusx.Degraded, agg.Results[0].Status)
	require.Error(t, agg.Results[0].Err)
	var probeErr *probe.Error
	require.ErrorAs(t, agg.Results[0].Err, &probeErr)
	assert.Equal(t, probe.KindServiceExpectation, probeErr.Kind)
	assert.Equal(t, "ok", probeErr.Expected)
	assert.Equal(t, "degraded", probeErr.Actual)
}

func TestOrchestrator_ExpectStatusMatchProducesNoError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	services := []probe.Service{{Name: "api", URL: srv.URL, ExpectStatus: "ok"}}
	params := probe.Parameters{Timeout: time.Second, Retries: 0, Concurrency: 10, MissingStatusPolicy: statusx.PolicyDown}

	o := newTestOrchestrator(t, services, params)
	agg := o.RunCycle(context.Background())

	require.Len(t, agg.Results, 1)
	assert.NoError(t, agg.Results[0].Err)
}

func TestOrchestrator_TransportFailureWrapsServiceProbeError(t *testing.T) {
	services := []probe.Service{{Name: "api", URL: "http://127.0.0.1:1"}} // nothing listens here
	params := probe.Parameters{Timeout: 200 * time.Millisecond, Retries: 0, Concurrency: 10, MissingStatusPolicy: statusx.PolicyDown}

	o := newTestOrchestrator(t, services, params)
	agg := o.RunCycle(context.Background())

	require.Len(t, agg.Results, 1)
	require.Error(t, agg.Results[0].Err)
	var probeErr *probe.Error
	require.ErrorAs(t, agg.Results[0].Err, &probeErr)
	assert.Equal(t, probe.KindServiceProbe, probeErr.Kind)
	assert.Equal(t, "api", probeErr.ServiceName)
	assert.Equal(t, services[0].URL, probeErr.URL)
}

func TestOrchestrator_MultiplierCarriedIntoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	services := []probe.Service{{Name: "api", URL: srv.URL}}
	params := probe.Parameters{Timeout: time.Second, Retries: 0, Concurrency: 10, MissingStatusPolicy: statusx.PolicyDown}

	o := newTestOrchestrator(t, services, params)
	agg := o.RunCycle(context.Background())

	require.Len(t, agg.Results, 1)
	assert.Equal(t, 2, agg.Results[0].Multiplier)
}

func TestOrchestrator_CoalescesOverlappingCycles(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	services := []probe.Service{{Name: "api", URL: srv.URL}}
	params := probe.Parameters{Timeout: time.Second, Retries: 0, Concurrency: 10, MissingStatusPolicy: statusx.PolicyDown}
	o := newTestOrchestrator(t, services, params)

	go o.runCycle(context.Background())
	<-started

	// A second tick arriving while the first cycle is in flight must be
	// dropped, not queued.
	o.runCycle(context.Background())

	assert.True(t, true) // runCycle returning immediately (not blocking) demonstrates the coalesce
	close(release)
	time.Sleep(20 * time.Millisecond)
}
