package probehttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveProxy_ExplicitWins(t *testing.T) {
	env := func(name string) (string, bool) {
		return "http://env-proxy:8080", true
	}
	got := resolveProxy("http://explicit-proxy:9090", "https", env)
	assert.Equal(t, "http://explicit-proxy:9090", got)
}

func TestResolveProxy_HTTPSSchemeTriesHTTPSThenHTTPEnv(t *testing.T) {
	env := func(name string) (string, bool) {
		if name == "HTTPS_PROXY" {
			return "", false
		}
		if name == "HTTP_PROXY" {
			return "http://fallback:8080", true
		}
		return "", false
	}
	got := resolveProxy("", "https", env)
	assert.Equal(t, "http://fallback:8080", got)
}

func TestResolveProxy_HTTPSchemeOnlyTriesHTTPEnv(t *testing.T) {
	env := func(name string) (string, bool) {
		if name == "HTTPS_PROXY" {
			return "http://should-not-be-used:1", true
		}
		return "", false
	}
	got := resolveProxy("", "http", env)
	assert.Equal(t, "", got)
}

func TestResolveProxy_EmptyAndWhitespaceTreatedAsAbsent(t *testing.T) {
	env := func(name string) (string, bool) {
		return "   ", true
	}
	got := resolveProxy("  ", "https", env)
	assert.Equal(t, "", got)
}

func TestProxyAgentCache_ReusesSameKey(t *testing.T) {
	c := NewProxyAgentCache()

	t1, err := c.Get("http://proxy:8080", false)
	require.NoError(t, err)
	t2, err := c.Get("http://proxy:8080", false)
	require.NoError(t, err)
	assert.Same(t, t1, t2)

	t3, err := c.Get("http://proxy:8080", true)
	require.NoError(t, err)
	assert.NotSame(t, t1, t3)
}

func TestProxyAgentCache_InvalidURIErrors(t *testing.T) {
	c := NewProxyAgentCache()
	_, err := c.Get("://not-a-url", false)
	assert.Error(t, err)
}

func TestKeepAlivePool_CloseAndDestroyAreIdempotent(t *testing.T) {
	p := NewKeepAlivePool(DefaultPoolConfig())
	p.Close()
	p.Close()
	p.Destroy()
	p.Destroy()
}

func TestKeepAlivePool_TransportSelection(t *testing.T) {
	p := NewKeepAlivePool(DefaultPoolConfig())

	assert.Same(t, p.httpTransport, p.Transport("http", false))
	assert.Same(t, p.httpsTransport, p.Transport("https", false))
	assert.Same(t, p.httpsInsecure, p.Transport("https", true))
}
