// Package probehttp implements the HTTP request layer: a keep-alive
// connection pool, proxy resolution and caching, per-request timeouts,
// optional TLS-verification bypass, debug instrumentation, and a
// per-service circuit breaker guarding the outbound call.
package probehttp

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// PoolConfig configures the keep-alive pool's two long-lived agents.
type PoolConfig struct {
	Connections         int
	ConnectTimeout      time.Duration
	KeepAliveTimeout    time.Duration
	KeepAliveMaxTimeout time.Duration
}

// DefaultPoolConfig mirrors common Go http.Transport defaults, scaled down
// to fit a probe workload rather than a high-throughput API client.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Connections:         32,
		ConnectTimeout:      5 * time.Second,
		KeepAliveTimeout:    30 * time.Second,
		KeepAliveMaxTimeout: 90 * time.Second,
	}
}

// KeepAlivePool is the process-wide pair of connection-reusing HTTP and
// HTTPS dispatchers. It is a long-lived singleton within a run/export
// invocation: constructed once, passed to every probe as an explicit
// collaborator, and torn down on shutdown.
type KeepAlivePool struct {
	httpTransport  *http.Transport
	httpsTransport *http.Transport
	httpsInsecure  *http.Transport

	mu        sync.Mutex
	closed    bool
	destroyed bool
}

// NewKeepAlivePool builds the HTTP and HTTPS transports from cfg. A third,
// TLS-verification-skipping HTTPS transport is built eagerly so Insecure
// probes never pay a first-use construction cost mid-cycle.
func NewKeepAlivePool(cfg PoolConfig) *KeepAlivePool {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	base := func(insecureSkipVerify bool) *http.Transport {
		t := &http.Transport{
			DialContext:         dialer.DialContext,
			MaxIdleConns:        cfg.Connections,
			MaxIdleConnsPerHost: cfg.Connections,
			IdleConnTimeout:     cfg.KeepAliveTimeout,
		}
		if insecureSkipVerify {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		return t
	}

	return &KeepAlivePool{
		httpTransport:  base(false),
		httpsTransport: base(false),
		httpsInsecure:  base(true),
	}
}

// Transport returns the pool's dispatcher for scheme, honoring insecure
// when the scheme is https. Callers must have already excluded proxy
// requests, which route through the ProxyAgentCache instead.
func (p *KeepAlivePool) Transport(scheme string, insecure bool) *http.Transport {
	if scheme == "https" {
		if insecure {
			return p.httpsInsecure
		}
		return p.httpsTransport
	}
	return p.httpTransport
}

// Close idempotently drains and closes idle connections on both agents.
func (p *KeepAlivePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.httpTransport.CloseIdleConnections()
	p.httpsTransport.CloseIdleConnections()
	p.httpsInsecure.CloseIdleConnections()
}

// Destroy hard-aborts any remaining sockets. Idempotent; safe to call
// whether or not Close ran first. In Go's net/http, CloseIdleConnections
// is the only exposed lifecycle hook — there is no forcible abort of
// in-flight connections, so Destroy is Close run again after the grace
// period the caller chooses to wait.
func (p *KeepAlivePool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.httpTransport.CloseIdleConnections()
	p.httpsTransport.CloseIdleConnections()
	p.httpsInsecure.CloseIdleConnections()
}

// proxyKey identifies one entry in the ProxyAgentCache.
type proxyKey struct {
	proxyURI           string
	rejectUnauthorized bool
}

// ProxyAgentCache lazily builds and reuses one *http.Transport per
// {proxyURI, rejectUnauthorized} pair, so repeated probes through the same
// proxy share connections instead of dialing fresh ones every cycle.
type ProxyAgentCache struct {
	mu      sync.Mutex
	entries map[proxyKey]*http.Transport
}

// NewProxyAgentCache constructs an empty cache.
func NewProxyAgentCache() *ProxyAgentCache {
	return &ProxyAgentCache{entries: make(map[proxyKey]*http.Transport)}
}

// Get returns the transport for {proxyURI, insecure}, building and storing
// it on first use. The per-key insert is single-writer: concurrent callers
// for the same key block on the cache mutex rather than racing to build
// duplicate agents.
func (c *ProxyAgentCache) Get(proxyURI string, insecure bool) (*http.Transport, error) {
	key := proxyKey{proxyURI: proxyURI, rejectUnauthorized: !insecure}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.entries[key]; ok {
		return t, nil
	}

	proxyURL, err := url.Parse(proxyURI)
	if err != nil {
		return nil, err
	}

	t := &http.Transport{
		Proxy: http.ProxyURL(proxyURL),
	}
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	c.entries[key] = t
	return t, nil
}

// resolveProxy implements the precedence rule: explicit proxy wins; else
// HTTPS_PROXY/HTTP_PROXY env chosen by the target URL's scheme. Empty or
// whitespace-only values are treated as absent at every level.
func resolveProxy(explicit string, scheme string, lookupEnv func(string) (string, bool)) string {
	if v := trimmed(explicit); v != "" {
		return v
	}

	candidates := []string{"HTTP_PROXY"}
	if scheme == "https" {
		candidates = []string{"HTTPS_PROXY", "HTTP_PROXY"}
	}
	for _, name := range candidates {
		if raw, ok := lookupEnv(name); ok {
			if v := trimmed(raw); v != "" {
				return v
			}
		}
	}
	return ""
}

func trimmed(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
