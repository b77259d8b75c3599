// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	gssapi "github.com/golang-auth/go-gssnegotiate"
	"github.com/golang-auth/go-gssnegotiate/negotiate"
)

func newTranslateCmd(a *app) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "translate <major> <minor>",
		Short: "Print the message for a major and minor status code",
		Long: `Print the "<major>, <minor>" message the engine reports for a pair of
status codes.  Codes may be decimal, or hexadecimal with a 0x prefix.

Examples:
  # A token had an invalid signature, Message integrity check failed
  gssnegotiate translate 0x00060000 17`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			major, err := parseCode(args[0])
			if err != nil {
				return fmt.Errorf("invalid major status: %w", err)
			}
			minor, err := parseCode(args[1])
			if err != nil {
				return fmt.Errorf("invalid minor status: %w", err)
			}

			p, err := gssapi.NewProvider(provider)
			if err != nil {
				registered := gssapi.RegisteredProviders()
				slices.Sort(registered)
				return fmt.Errorf("provider %q: %w (registered: %s)", provider, err, strings.Join(registered, ", "))
			}

			tr := negotiate.NewTranslator(p, negotiate.WithSegmentLimit(a.cfg.Negotiate.StatusSegmentLimit))
			fmt.Fprintln(cmd.OutOrStdout(), tr.Translate(major, minor))
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "krb5", "registered provider that displays the minor code")

	return cmd
}

func parseCode(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
