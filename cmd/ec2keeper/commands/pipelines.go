package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/ec2keeper/cmd/ec2keeper/handlers"
)

// Pipelines returns the pipelines command group.
func Pipelines(opts *handlers.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelines",
		Short: "Register pipelines and inspect their deployment config",
	}

	var tenantID, configFile string
	register := &cobra.Command{
		Use:   "register PIPELINE_ID",
		Short: "Create or replace a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.PipelinesRegister(cmd.Context(), *opts, args[0], tenantID, configFile)
		},
	}
	register.Flags().StringVar(&tenantID, "tenant", "", "Owning tenant (required)")
	register.Flags().StringVar(&configFile, "deployment-config", "", "Path to a JSON deployment config")
	_ = register.MarkFlagRequired("tenant")
	cmd.AddCommand(register)

	cmd.AddCommand(&cobra.Command{
		Use:   "show PIPELINE_ID",
		Short: "Print the deployment config of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.PipelinesShow(cmd.Context(), *opts, args[0])
		},
	})

	return cmd
}
