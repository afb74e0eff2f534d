package probehttp

import (
	"crypto/tls"
	"net/http/httptrace"
	"time"

	"github.com/rs/zerolog"
)

// requestTrace captures per-attempt timing via httptrace.ClientTrace, for
// the debug instrumentation hook's dns/tcp/tls/ttfb breakdown.
type requestTrace struct {
	dnsStart, dnsDone     time.Time
	connectStart, connDone time.Time
	tlsStart, tlsDone     time.Time
	gotConn               time.Time
	firstByte             time.Time

	connReused bool
	remoteAddr string
}

func (t *requestTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(_ httptrace.DNSStartInfo) { t.dnsStart = time.Now() },
		DNSDone:  func(_ httptrace.DNSDoneInfo) { t.dnsDone = time.Now() },
		ConnectStart: func(_, _ string) {
			t.connectStart = time.Now()
		},
		ConnectDone: func(_, _ string, _ error) {
			t.connDone = time.Now()
		},
		TLSHandshakeStart: func() { t.tlsStart = time.Now() },
		TLSHandshakeDone: func(_ tls.ConnectionState, _ error) {
			t.tlsDone = time.Now()
		},
		GotConn: func(info httptrace.GotConnInfo) {
			t.gotConn = time.Now()
			t.connReused = info.Reused
			if info.Conn != nil {
				if addr := info.Conn.RemoteAddr(); addr != nil {
					t.remoteAddr = addr.String()
				}
			}
		},
		GotFirstResponseByte: func() { t.firstByte = time.Now() },
	}
}

// annotate adds the trace's measured durations to a zerolog event. Any
// phase that did not happen (e.g. dns/tls on a reused connection) is
// simply omitted.
func (t *requestTrace) annotate(evt *zerolog.Event) *zerolog.Event {
	if !t.dnsStart.IsZero() && !t.dnsDone.IsZero() {
		evt = evt.Dur("dns_ms", t.dnsDone.Sub(t.dnsStart))
	}
	if !t.connectStart.IsZero() && !t.connDone.IsZero() {
		evt = evt.Dur("tcp_ms", t.connDone.Sub(t.connectStart))
	}
	if !t.tlsStart.IsZero() && !t.tlsDone.IsZero() {
		evt = evt.Dur("tls_ms", t.tlsDone.Sub(t.tlsStart))
	}
	if !t.gotConn.IsZero() && !t.firstByte.IsZero() {
		evt = evt.Dur("ttfb_ms", t.firstByte.Sub(t.gotConn))
	}
	if t.remoteAddr != "" {
		evt = evt.Str("remote_addr", t.remoteAddr)
	}
	return evt
}
