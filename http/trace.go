// SPDX-License-Identifier: Apache-2.0

package http

import (
	"crypto/tls"
	"net/http"
	"net/http/httptrace"
	"net/http/httputil"
)

func (t *Transport) traceRequest(req *http.Request) *http.Request {
	if httptrace.ContextClientTrace(req.Context()) != nil {
		return req
	}

	trace := &httptrace.ClientTrace{
		GetConn: func(hostPort string) {
			t.logger.Debug("getting connection", "host", hostPort)
		},
		GotConn: func(info httptrace.GotConnInfo) {
			t.logger.Debug("got connection", "local", info.Conn.LocalAddr(), "remote", info.Conn.RemoteAddr(), "reused", info.Reused)
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			t.logger.Debug("TLS handshake done", "version", tls.VersionName(state.Version), "error", err)
		},
		Wait100Continue: func() {
			t.logger.Debug("waiting for 100-continue")
		},
		Got100Continue: func() {
			t.logger.Debug("got 100-continue")
		},
	}

	return req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
}

// the bodies are not logged
func (t *Transport) logRequest(req *http.Request) {
	if b, err := httputil.DumpRequestOut(req, false); err == nil {
		t.logger.Debug("> request", "dump", string(b))
	}
}

func (t *Transport) logResponse(resp *http.Response) {
	if b, err := httputil.DumpResponse(resp, false); err == nil {
		t.logger.Debug("< response", "dump", string(b))
	}
}
