package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/ec2keeper/cmd/ec2keeper/handlers"
)

// Tenants returns the tenants command group.
func Tenants(opts *handlers.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage tenant tiers and usage",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-tier TENANT_ID TIER",
		Short: "Set the tier of a tenant (free, basic, professional, enterprise)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.TenantsSetTier(cmd.Context(), *opts, args[0], args[1])
		},
	})

	var jsonOutput bool
	usage := &cobra.Command{
		Use:   "usage TENANT_ID",
		Short: "Show billed runtime per deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.TenantsUsage(cmd.Context(), *opts, args[0], jsonOutput)
		},
	}
	usage.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.AddCommand(usage)

	return cmd
}
