package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/ec2keeper/cmd/ec2keeper/handlers"
)

// Terminate returns the terminate command.
//
// The instance of every given deployment is terminated and the deployment
// record is marked terminated. Records are never deleted.
func Terminate(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "terminate DEPLOYMENT_ID...",
		Short: "Terminate deployments and their instances",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, ids []string) error {
			return handlers.Terminate(cmd.Context(), *opts, ids)
		},
	}
}
