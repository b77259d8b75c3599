// SPDX-License-Identifier: Apache-2.0

// Command gssnegotiate runs Kerberos negotiation clients and servers.
package main

import (
	"fmt"
	"os"

	"github.com/golang-auth/go-gssnegotiate/cmd/gssnegotiate/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
