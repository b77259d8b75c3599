// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/golang-auth/go-gssnegotiate/internal/logger"
	"github.com/golang-auth/go-gssnegotiate/negotiate"
)

const shutdownTimeout = 5 * time.Second

// newMetrics registers the negotiation and runtime metrics in a new registry and
// returns the handler that exposes them.
func newMetrics() (*negotiate.Metrics, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return negotiate.NewMetrics(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// startMetrics serves /metrics on the configured address until ctx is done.  It returns
// nil metrics when they are disabled.
func (a *app) startMetrics(ctx context.Context) (*negotiate.Metrics, error) {
	if !a.cfg.Metrics.Enabled {
		return nil, nil
	}

	m, h := newMetrics()
	r := chi.NewRouter()
	r.Handle("/metrics", h)

	ln, err := net.Listen("tcp", a.cfg.Metrics.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", a.cfg.Metrics.Listen, err)
	}

	serveHTTP(ctx, &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}, ln, "metrics")
	return m, nil
}

// serveHTTP runs srv on ln in the background until ctx is done.
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, name string) {
	l := logger.With("listener", name, "addr", ln.Addr().String())

	go func() {
		l.Info("http listener started")
		if err := runHTTP(ctx, srv, ln); err != nil {
			l.Error("http listener failed", "error", err)
		}
	}()
}

// runHTTP serves on ln and shuts srv down when ctx is done.
func runHTTP(ctx context.Context, srv *http.Server, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	})
	defer stop()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
