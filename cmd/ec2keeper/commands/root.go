// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/ec2keeper/cmd/ec2keeper/handlers"
)

// Root returns the root command for the ec2keeper CLI.
//
// Global flags are bound once here and handed to every subcommand.
func Root() *cobra.Command {
	opts := &handlers.Options{}

	cmd := &cobra.Command{
		Use:           "ec2keeper",
		Short:         "Provision tenant instances on EC2 and manage their SSH keys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: ec2keeper.yaml)")
	flags.IntVarP(&opts.Verbosity, "verbose", "v", 0, "Log verbosity (0-2)")
	flags.BoolVar(&opts.LogJSON, "log-json", false, "Write logs as JSON")
	flags.StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")

	// Core commands
	cmd.AddCommand(Provision(opts))
	cmd.AddCommand(Terminate(opts))
	cmd.AddCommand(Diagnose(opts))

	// Operator commands
	cmd.AddCommand(Keys(opts))
	cmd.AddCommand(Tenants(opts))
	cmd.AddCommand(Pipelines(opts))
	cmd.AddCommand(Version())

	return cmd
}
