// Package main is the entry point for the ec2keeper CLI.
//
// ec2keeper provisions per-tenant EC2 instances, keeps track of the SSH
// keys needed to reach them, and explains why an instance is unreachable.
//
// Commands: provision, terminate, diagnose, keys, tenants, pipelines.
//
// For detailed usage information, run:
//
//	ec2keeper --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/ec2keeper/cmd/ec2keeper/commands"
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
