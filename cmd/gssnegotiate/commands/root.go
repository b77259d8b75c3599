// SPDX-License-Identifier: Apache-2.0

// Package commands implements the gssnegotiate command line.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	gssapi "github.com/golang-auth/go-gssnegotiate"
	"github.com/golang-auth/go-gssnegotiate/internal/config"
	"github.com/golang-auth/go-gssnegotiate/internal/logger"
	"github.com/golang-auth/go-gssnegotiate/negotiate"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// app is the state shared by the subcommands of one invocation.
type app struct {
	cfgFile  string
	logLevel string

	cfg *config.Config

	// newProvider builds the mechanism provider; replaced in tests
	newProvider func(cfg *config.Config, l *slog.Logger) (gssapi.Provider, error)
}

// NewRootCmd returns the gssnegotiate command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{newProvider: newKrb5Provider})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "gssnegotiate",
		Short: "Kerberos negotiation client and server",
		Long: `gssnegotiate runs Kerberos authentication handshakes over TCP and HTTP.

The client and server commands exchange context tokens over a framed TCP
connection, then negotiate a security layer and echo protected messages.
The http-serve and http-get commands use the HTTP Negotiate scheme.

Use "gssnegotiate [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./gssnegotiate.yaml or $XDG_CONFIG_HOME/gssnegotiate/gssnegotiate.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR (overrides the config file)")

	root.AddCommand(
		newVersionCmd(),
		newClientCmd(a),
		newServerCmd(a),
		newHTTPServeCmd(a),
		newHTTPGetCmd(a),
		newTranslateCmd(a),
	)
	root.CompletionOptions.DisableDefaultCmd = true

	return root
}

// Execute runs the command line until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) load() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(a.logLevel)
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", a.logLevel, err)
		}
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	return nil
}

func (a *app) provider(component string) (gssapi.Provider, error) {
	p, err := a.newProvider(a.cfg, logger.With("component", component))
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	return p, nil
}

// negotiateOptions returns the engine options from the configuration.
func (a *app) negotiateOptions(l *slog.Logger, m *negotiate.Metrics) []negotiate.Option {
	return []negotiate.Option{
		negotiate.WithLogger(l),
		negotiate.WithMetrics(m),
		negotiate.WithStatusSegmentLimit(a.cfg.Negotiate.StatusSegmentLimit),
		negotiate.WithLifetime(a.cfg.Negotiate.Lifetime),
	}
}
