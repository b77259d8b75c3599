// SPDX-License-Identifier: Apache-2.0

package http

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gssapi "github.com/golang-auth/go-gssnegotiate"
	"github.com/golang-auth/go-gssnegotiate/gsstest"
)

const testService = "HTTP@www.example.com"

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// hello writes the identity found in the request context
func hello(w http.ResponseWriter, r *http.Request) {
	id, ok := GetIdentity(r)
	if !ok {
		http.Error(w, "no identity", http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "%s %s", id.Principal, id.Target)
}

func serve(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerChallenge(t *testing.T) {
	h := NewHandler(gsstest.New(), testService, http.HandlerFunc(hello))

	for _, authz := range []string{"", "Basic dXNlcjpwYXNz", "Negotiate"} {
		rec := serve(h, authz)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, authz)
		assert.Equal(t, "Negotiate", rec.Header().Get("WWW-Authenticate"), authz)
	}
}

func TestHandlerSuccess(t *testing.T) {
	assert := assert.New(t)
	p := gsstest.New()
	h := NewHandler(p, testService, http.HandlerFunc(hello))

	tok := gsstest.InitToken(1, gssapi.ContextFlagMutual, gsstest.DefaultInitiator, testService)
	rec := serve(h, "Negotiate "+b64(tok))

	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("alice "+testService, rec.Body.String())
	assert.Equal("Negotiate "+b64(gsstest.AcceptToken(1, testService)), rec.Header().Get("WWW-Authenticate"))
	assert.Equal(0, p.Outstanding())
}

func TestHandlerOneWay(t *testing.T) {
	h := NewHandler(gsstest.New(gsstest.WithOneWay()), testService, http.HandlerFunc(hello))

	tok := gsstest.InitToken(1, 0, "bob", testService)
	rec := serve(h, "Negotiate "+b64(tok))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob "+testService, rec.Body.String())
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestHandlerAnonymous(t *testing.T) {
	h := NewHandler(gsstest.New(), "", http.HandlerFunc(hello))

	tok := gsstest.InitToken(1, 0, gsstest.DefaultInitiator, "HTTP@other.example.com")
	rec := serve(h, "Negotiate "+b64(tok))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice HTTP@other.example.com", rec.Body.String())
}

func TestHandlerRejected(t *testing.T) {
	var tests = []struct {
		name  string
		p     *gsstest.Provider
		authz string
	}{
		{"bad encoding", gsstest.New(), "Negotiate !!!"},
		{"bad token", gsstest.New(), "Negotiate " + b64([]byte("garbage"))},
		{"wrong target", gsstest.New(), "Negotiate " + b64(gsstest.InitToken(1, 0, "alice", "HTTP@evil.example.com"))},
		{"multiple rounds", gsstest.New(gsstest.WithRounds(2)), "Negotiate " + b64(gsstest.InitToken(1, 0, "alice", testService))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
			rec := serve(NewHandler(tt.p, testService, next), tt.authz)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Negotiate", rec.Header().Get("WWW-Authenticate"))
			assert.False(t, called)
			assert.Equal(t, 0, tt.p.Outstanding())
		})
	}
}

func TestHandlerServerFailure(t *testing.T) {
	p := gsstest.New()
	p.FailOn(gsstest.OpAcquireCredential, gsstest.ErrInjected)

	rec := serve(NewHandler(p, testService, http.HandlerFunc(hello)), "Negotiate "+b64([]byte("x")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandlerAcceptorCredential(t *testing.T) {
	p := gsstest.New()
	name, err := p.ImportName(testService, gssapi.GSS_NT_HOSTBASED_SERVICE)
	require.NoError(t, err)
	cred, err := p.AcquireCredential(name, gssapi.CredUsageAcceptOnly)
	require.NoError(t, err)
	require.NoError(t, name.Release())

	// the handler must not acquire its own credential
	p.FailOn(gsstest.OpAcquireCredential, gsstest.ErrInjected)

	h := NewHandler(p, "", http.HandlerFunc(hello), WithAcceptorCredential(cred))
	rec := serve(h, "Negotiate "+b64(gsstest.InitToken(1, 0, "alice", testService)))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, p.Outstanding())
	require.NoError(t, cred.Release())
}

func TestHandlerDelegation(t *testing.T) {
	p := gsstest.New()

	var delegated gssapi.Credential
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delegated = GetDelegatedCredential(r)
	})

	tok := gsstest.InitToken(1, gssapi.ContextFlagDeleg, "alice", testService)
	rec := serve(NewHandler(p, testService, next), "Negotiate "+b64(tok))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, delegated)
	assert.Equal(t, 0, p.Outstanding(), "delegated credential released after the request")
}

func TestMiddlewareRequestID(t *testing.T) {
	var reqID, chiID string

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Middleware(gsstest.New(), testService))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		reqID = GetRequestID(r.Context())
		chiID = middleware.GetReqID(r.Context())
	})

	rec := serve(r, "Negotiate "+b64(gsstest.InitToken(1, 0, "alice", testService)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, reqID)
	assert.Equal(t, chiID, reqID)
}

func TestRequestIDWithoutChi(t *testing.T) {
	var reqID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID = GetRequestID(r.Context())
	})

	serve(NewHandler(gsstest.New(), testService, next), "Negotiate "+b64(gsstest.InitToken(1, 0, "alice", testService)))
	assert.Len(t, reqID, 36)
}

func newDebugLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
