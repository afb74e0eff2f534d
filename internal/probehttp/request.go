package probehttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/W0rldHacker/health-multi/internal/probe"
	"github.com/W0rldHacker/health-multi/internal/redact"
)

// Request is one outbound probe attempt.
type Request struct {
	ServiceName string
	Method      string
	URL         string
	Headers     map[string]string
	Timeout     time.Duration
	Proxy       string
	Insecure    bool
	Debug       bool
}

// Response is the decoded outcome of a successful round trip. The body is
// returned as raw bytes; JSON decoding is the orchestrator's concern.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Layer bundles the shared, process-wide collaborators the HTTP request
// layer needs: the keep-alive pool, the proxy agent cache, the per-service
// circuit breaker registry, and a debug sink. Construct one Layer per
// run/export invocation and pass it to every probe.
type Layer struct {
	Pool     *KeepAlivePool
	Proxies  *ProxyAgentCache
	breakers *breakerRegistry
	Debug    zerolog.Logger
	LookupEnv func(string) (string, bool)
}

// NewLayer wires a Layer with production defaults: a fresh keep-alive
// pool, an empty proxy cache, a breaker registry, and a stdout debug
// logger (silent unless a request sets Debug).
func NewLayer(poolCfg PoolConfig, breakerCfg BreakerConfig) *Layer {
	return &Layer{
		Pool:      NewKeepAlivePool(poolCfg),
		Proxies:   NewProxyAgentCache(),
		breakers:  newBreakerRegistry(breakerCfg),
		Debug:     zerolog.New(os.Stdout).With().Timestamp().Logger(),
		LookupEnv: os.LookupEnv,
	}
}

// Close tears down the keep-alive pool. Call once on shutdown.
func (l *Layer) Close() {
	l.Pool.Close()
}

// Do executes req through the transport chain: protocol gate, dispatcher
// selection (proxy cache or keep-alive pool), per-request timeout, and the
// service's circuit breaker. It returns probe.NewRequestTimeoutError when
// the deadline elapses before a response arrives, and
// gobreaker.ErrOpenState (surfaced verbatim) when the circuit is open.
func (l *Layer) Do(ctx context.Context, req Request) (*Response, error) {
	scheme, err := protocolOf(req.URL)
	if err != nil {
		return nil, err
	}

	transport, err := l.dispatcherFor(scheme, req)
	if err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method(req.Method), req.URL, nil)
	if err != nil {
		return nil, err
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	var trace *requestTrace
	if req.Debug {
		trace = &requestTrace{}
		ctx = httptrace.WithClientTrace(ctx, trace.clientTrace())
		httpReq = httpReq.WithContext(ctx)
	}

	client := &http.Client{Transport: transport}
	start := time.Now()

	resp, err := l.breakers.Execute(req.ServiceName, func() (*http.Response, error) {
		return client.Do(httpReq)
	})

	if req.Debug {
		l.logDebug(req, resp, trace, start, err)
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, probe.NewRequestTimeoutError(req.Timeout.Milliseconds())
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// dispatcherFor resolves the transport a request should use: an explicit
// or env-derived proxy wins over the keep-alive pool.
func (l *Layer) dispatcherFor(scheme string, req Request) (http.RoundTripper, error) {
	proxyURI := resolveProxy(req.Proxy, scheme, l.LookupEnv)
	if proxyURI != "" {
		return l.Proxies.Get(proxyURI, req.Insecure)
	}
	return l.Pool.Transport(scheme, req.Insecure), nil
}

func protocolOf(rawURL string) (string, error) {
	switch {
	case strings.HasPrefix(rawURL, "https://"):
		return "https", nil
	case strings.HasPrefix(rawURL, "http://"):
		return "http", nil
	default:
		return "", probe.NewInternalError(fmt.Sprintf("unsupported protocol in url %q: only http/https are allowed", rawURL))
	}
}

func method(m string) string {
	if m == "" {
		return http.MethodGet
	}
	return m
}

// logDebug emits a single structured record per completed (or failed)
// request, redacting credentials from the URL before it reaches the sink.
func (l *Layer) logDebug(req Request, resp *http.Response, trace *requestTrace, start time.Time, err error) {
	evt := l.Debug.Debug().
		Str("service", req.ServiceName).
		Str("url", redact.URL(req.URL)).
		Str("proxy", redact.URL(req.Proxy)).
		Dur("total_ms", time.Since(start))

	if trace != nil {
		evt = trace.annotate(evt)
	}
	if resp != nil {
		evt = evt.Int("status", resp.StatusCode).
			Int64("content_length", resp.ContentLength).
			Bool("reused_conn", trace != nil && trace.connReused)
	}
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Msg("probe request")
}
