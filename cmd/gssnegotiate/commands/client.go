// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	gssapi "github.com/golang-auth/go-gssnegotiate"
	"github.com/golang-auth/go-gssnegotiate/internal/logger"
	"github.com/golang-auth/go-gssnegotiate/negotiate"
)

func newClientCmd(a *app) *cobra.Command {
	var (
		service  string
		user     string
		flags    []string
		messages []string
	)

	cmd := &cobra.Command{
		Use:   "client <host:port>",
		Short: "Authenticate to a gssnegotiate server over TCP",
		Long: `Connect to a gssnegotiate server, run the Kerberos handshake, answer the
security layer offer and send each --message protected.  The server's echo
of each message is printed.

Examples:
  # Authenticate to host@db.example.com
  gssnegotiate client db.example.com:4444 --service host@db.example.com

  # Ask to act as another user and send two messages
  gssnegotiate client db.example.com:4444 --user bob -m hello -m world`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("service") {
				service = a.cfg.Server.Service
			}
			reqFlags := a.cfg.Negotiate.ContextFlags()
			if cmd.Flags().Changed("flags") {
				f, unknown := gssapi.ParseFlags(flags)
				if len(unknown) > 0 {
					return fmt.Errorf("unknown context flags: %v", unknown)
				}
				reqFlags = f
			}

			p, err := a.provider("krb5")
			if err != nil {
				return err
			}

			d := net.Dialer{Timeout: a.cfg.Server.IOTimeout}
			conn, err := d.DialContext(cmd.Context(), "tcp", args[0])
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer conn.Close()

			l := logger.With("remote", conn.RemoteAddr().String(), "service", service)
			c, err := negotiate.NewClient(p, service, reqFlags, a.negotiateOptions(l, nil)...)
			if err != nil {
				return err
			}
			defer c.Clean()

			rw := &timeoutConn{Conn: conn, timeout: a.cfg.Server.IOTimeout}
			echoes, err := runClient(rw, c, user, messages, l)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "authenticated as %s\n", c.Username())
			for _, e := range echoes {
				fmt.Fprintln(out, e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "service to authenticate to, host-based or a principal (default from config)")
	cmd.Flags().StringVar(&user, "user", "", "authorization identity to request (default: the authenticated principal)")
	cmd.Flags().StringSliceVar(&flags, "flags", nil, "context flags to request (default from config)")
	cmd.Flags().StringArrayVarP(&messages, "message", "m", nil, "message to send protected, may be repeated")

	return cmd
}
