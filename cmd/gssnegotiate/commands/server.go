// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	gssapi "github.com/golang-auth/go-gssnegotiate"
	"github.com/golang-auth/go-gssnegotiate/internal/logger"
	"github.com/golang-auth/go-gssnegotiate/negotiate"
)

func newServerCmd(a *app) *cobra.Command {
	var listen, service string
	anonymous := false

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Accept Kerberos handshakes over TCP",
		Long: `Listen for TCP clients, authenticate each connection with a Kerberos
handshake, negotiate the security layer and echo protected messages.

With --anonymous the server accepts a ticket for any service principal in
the keytab and logs the service the client chose.

Examples:
  # Accept host@localhost on the configured address
  gssnegotiate server

  # Accept any service in the keytab on port 5555
  gssnegotiate server --listen :5555 --anonymous`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := a.cfg.Server
			if cmd.Flags().Changed("listen") {
				sc.Listen = listen
			}
			if cmd.Flags().Changed("service") {
				sc.Service = service
			}
			if anonymous {
				sc.Service = ""
			}

			p, err := a.provider("krb5")
			if err != nil {
				return err
			}

			m, err := a.startMetrics(cmd.Context())
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", sc.Listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", sc.Listen, err)
			}

			srv := &tcpServer{
				provider: p,
				service:  sc.Service,
				timeout:  sc.IOTimeout,
				logger:   logger.Logger(),
				opts: func(l *slog.Logger) []negotiate.Option {
					return a.negotiateOptions(l, m)
				},
			}
			return srv.serve(cmd.Context(), ln)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from config)")
	cmd.Flags().StringVar(&service, "service", "", "host-based service name to accept (default from config)")
	cmd.Flags().BoolVar(&anonymous, "anonymous", false, "accept any service principal in the keytab")

	return cmd
}

type tcpServer struct {
	provider gssapi.Provider
	service  string
	timeout  time.Duration
	logger   *slog.Logger
	opts     func(l *slog.Logger) []negotiate.Option
}

// serve accepts connections until ctx is done, then waits for open connections.
func (t *tcpServer) serve(ctx context.Context, ln net.Listener) error {
	t.logger.Info("server listening", "addr", ln.Addr().String(), "service", t.service)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				t.logger.Info("server stopped")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			t.handle(ctx, conn)
		}()
	}
}

func (t *tcpServer) handle(ctx context.Context, conn net.Conn) {
	l := t.logger.With("conn_id", uuid.NewString(), "remote", conn.RemoteAddr().String())

	// unblock reads when the server shuts down
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	if err := t.session(&timeoutConn{Conn: conn, timeout: t.timeout}, l); err != nil {
		l.Warn("session failed", "error", err)
		return
	}
	l.Debug("session closed")
}

func (t *tcpServer) session(conn net.Conn, l *slog.Logger) error {
	s, err := negotiate.NewServer(t.provider, t.service, t.opts(l)...)
	if err != nil {
		return err
	}
	defer s.Clean()

	if err := serverHandshake(conn, s, l); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	authz, err := serverSecurityLayer(conn, s, l)
	if err != nil {
		return fmt.Errorf("security layer: %w", err)
	}

	attrs := []any{"principal", s.Username(), "authz", authz}
	if t.service == "" {
		attrs = append(attrs, "target", s.TargetName())
	}
	l.Info("client authenticated", attrs...)

	return serverEcho(conn, s, l)
}

// timeoutConn applies an I/O deadline to every read and write.
type timeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *timeoutConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *timeoutConn) Write(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
