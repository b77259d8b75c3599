// SPDX-License-Identifier: Apache-2.0

package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	gssapi "github.com/golang-auth/go-gssnegotiate"
	"github.com/golang-auth/go-gssnegotiate/negotiate"
)

// Handler is a http.Handler that performs Negotiate authentication and passes the
// client's identity to the next handler.
type Handler struct {
	provider gssapi.Provider
	service  string
	next     http.Handler
	logger   *slog.Logger
	opts     []negotiate.Option
}

// HandlerOption is a function that can be used to configure the Handler
type HandlerOption func(h *Handler)

// WithAcceptorCredential makes the Handler accept with cred instead of acquiring a
// credential for its service on every request.  The caller keeps ownership of cred.
func WithAcceptorCredential(cred gssapi.Credential) HandlerOption {
	return func(h *Handler) {
		h.opts = append(h.opts, negotiate.WithCredential(cred))
	}
}

// WithAcceptorLogger sets the logger for authentication failures and debug output.
func WithAcceptorLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithAcceptorOptions passes extra options to each negotiate.Server.
func WithAcceptorOptions(opts ...negotiate.Option) HandlerOption {
	return func(h *Handler) {
		h.opts = append(h.opts, opts...)
	}
}

// NewHandler returns a Handler that authenticates clients to service, a host-based
// service name such as "HTTP@www.example.com".  An empty service accepts tickets for any
// principal in the provider's keytab.
func NewHandler(p gssapi.Provider, service string, next http.Handler, options ...HandlerOption) *Handler {
	h := &Handler{
		provider: p,
		service:  service,
		next:     next,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(h)
	}
	return h
}

// Middleware returns a constructor for use with chi's Router.Use.
func Middleware(p gssapi.Provider, service string, options ...HandlerOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return NewHandler(p, service, next, options...)
	}
}

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", scheme)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

// ServeHTTP authenticates the request with a single negotiation round trip.  The Go
// http.Server gives no way to keep a context across requests without hijacking the
// connection, so mechanisms that need more than one round are refused.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := requestID(r)
	logger := h.logger.With("request_id", id, "remote", r.RemoteAddr)

	token, ok := parseAuthorization(r.Header)
	if !ok || token == "" {
		unauthorized(w)
		return
	}

	opts := append([]negotiate.Option{negotiate.WithLogger(logger)}, h.opts...)
	s, err := negotiate.NewServer(h.provider, h.service, opts...)
	if err != nil {
		logger.Error("cannot initialize negotiation", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer s.Clean()

	res := s.Step(token)
	switch res.Status {
	case negotiate.StatusError:
		logger.Info("negotiate authentication failed", "message", res.Message)
		unauthorized(w)
		return
	case negotiate.StatusContinue:
		logger.Info("negotiate authentication failed", "message", "mechanism needs more than one round trip")
		unauthorized(w)
		return
	}

	if res.Token != "" {
		w.Header().Set("WWW-Authenticate", scheme+" "+res.Token)
	}

	ident := &Identity{Principal: s.Username(), Target: s.TargetName()}
	if ident.Target == "" {
		ident.Target = h.service
	}
	logger.Debug("negotiate authentication succeeded", "principal", ident.Principal, "target", ident.Target)

	ctx := stashRequestID(r.Context(), id)
	ctx = stashIdentity(ctx, ident)
	if cred := s.DelegatedCredential(); cred != nil {
		ctx = stashDelegatedCredential(ctx, cred)
	}

	h.next.ServeHTTP(w, r.WithContext(ctx))
}
