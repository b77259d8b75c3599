// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	gssapi "github.com/golang-auth/go-gssnegotiate"
	ghttp "github.com/golang-auth/go-gssnegotiate/http"
	"github.com/golang-auth/go-gssnegotiate/internal/logger"
	"github.com/golang-auth/go-gssnegotiate/negotiate"
)

func newHTTPServeCmd(a *app) *cobra.Command {
	var listen, service string

	cmd := &cobra.Command{
		Use:   "http-serve",
		Short: "Serve HTTP with Negotiate authentication",
		Long: `Serve HTTP requests authenticated with the Negotiate scheme.  Every path
except /metrics requires authentication and answers with the client's
principal.

Examples:
  gssnegotiate http-serve --listen :8080 --service HTTP@www.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hc := a.cfg.HTTP
			if cmd.Flags().Changed("listen") {
				hc.Listen = listen
			}
			if cmd.Flags().Changed("service") {
				hc.Service = service
			}

			p, err := a.provider("krb5")
			if err != nil {
				return err
			}

			var m *negotiate.Metrics
			var metricsHandler http.Handler
			if a.cfg.Metrics.Enabled {
				m, metricsHandler = newMetrics()
			}

			l := logger.With("component", "http")
			r := newHTTPRouter(p, hc.Service, l, metricsHandler, a.negotiateOptions(l, m)...)

			ln, err := net.Listen("tcp", hc.Listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", hc.Listen, err)
			}
			l.Info("http server listening", "addr", ln.Addr().String(), "service", hc.Service)

			return runHTTP(cmd.Context(), &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}, ln)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from config)")
	cmd.Flags().StringVar(&service, "service", "", "host-based service name to accept, empty accepts any (default from config)")

	return cmd
}

// newHTTPRouter authenticates every route except /metrics, which is only mounted when
// metricsHandler is not nil.
func newHTTPRouter(p gssapi.Provider, service string, l *slog.Logger, metricsHandler http.Handler, opts ...negotiate.Option) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(ghttp.Middleware(p, service,
			ghttp.WithAcceptorLogger(l),
			ghttp.WithAcceptorOptions(opts...)))
		r.HandleFunc("/*", whoami)
	})

	return r
}

func whoami(w http.ResponseWriter, r *http.Request) {
	id, ok := ghttp.GetIdentity(r)
	if !ok {
		http.Error(w, "no identity", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Hello, %s\n", id.Principal)
	fmt.Fprintf(w, "service: %s\n", id.Target)
	fmt.Fprintf(w, "request: %s\n", ghttp.GetRequestID(r.Context()))
}

func newHTTPGetCmd(a *app) *cobra.Command {
	var (
		spn           string
		mutual        bool
		delegate      bool
		opportunistic bool
		trace         bool
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "http-get <url>",
		Short: "Fetch a URL using Negotiate authentication",
		Long: `Fetch a URL, answering Negotiate challenges from the server, and print the
response body.  The service defaults to HTTP@ followed by the URL's host.

Examples:
  gssnegotiate http-get https://www.example.com/ --mutual
  gssnegotiate http-get http://localhost:8080/ --spn HTTP@www.example.com --trace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid url: %w", err)
			}

			p, err := a.provider("krb5")
			if err != nil {
				return err
			}

			l := logger.With("component", "http")
			opts := []ghttp.ClientOption{
				ghttp.WithInitiatorLogger(l),
				ghttp.WithInitiatorOptions(a.negotiateOptions(l, nil)...),
			}
			if spn != "" {
				opts = append(opts, ghttp.WithInitiatorSpnFunc(func(url.URL) string { return spn }))
			}
			if mutual {
				opts = append(opts, ghttp.WithInitiatorMutual())
			}
			if delegate {
				opts = append(opts, ghttp.WithInitiatorDelegation())
			}
			if opportunistic {
				opts = append(opts, ghttp.WithInitiatorOpportunistic())
			}
			if trace {
				opts = append(opts, ghttp.WithInitiatorHTTPLogging())
			}

			client := ghttp.NewClient(p, &http.Client{Timeout: timeout}, opts...)

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u.String(), nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			if resp.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("server returned %s", resp.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&spn, "spn", "", "service name to authenticate to (default: HTTP@<host>)")
	cmd.Flags().BoolVar(&mutual, "mutual", false, "require mutual authentication")
	cmd.Flags().BoolVar(&delegate, "delegate", false, "delegate credentials to the server")
	cmd.Flags().BoolVar(&opportunistic, "opportunistic", false, "send a token with the first request")
	cmd.Flags().BoolVar(&trace, "trace", false, "log requests and responses at debug level")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	return cmd
}
