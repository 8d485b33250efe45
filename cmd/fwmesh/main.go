// Package main is the entry point for the fwmesh CLI.
//
// fwmesh reconciles a declared network topology (networks, subnets,
// firewall rules, routes, instance groups, load balancers) against the
// live state of a cloud provider. It computes a minimal change set and
// applies it in dependency order.
//
// Commands: plan, apply, destroy, state, version, completion.
//
// For detailed usage information, run:
//
//	fwmesh --help
package main

import (
	"fmt"
	"os"

	"github.com/fwmesh/fwmesh/cmd/fwmesh/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
