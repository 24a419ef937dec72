package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/ec2keeper/cmd/ec2keeper/handlers"
)

// Provision returns the provision command.
//
// Required flags:
//
//	--tenant: Tenant the instance is billed to
//
// Optional flags:
//
//	--pipeline: Pipeline whose running instance may be reused
//	--json: Output in JSON format
func Provision(opts *handlers.Options) *cobra.Command {
	var args handlers.ProvisionArgs

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision or reuse an instance for a tenant",
		Long: `Provision returns an SSH-reachable instance for a tenant.

When --pipeline is given and the pipeline already has a running instance,
that instance is returned and nothing is launched. Otherwise the tenant's
tier decides the instance type and how many instances may run at once.

The command waits until the instance is running and its SSH port accepts
connections. Polling is tuned with EC2KEEPER_POLL_INTERVAL,
EC2KEEPER_RUNNING_MAX_ATTEMPTS, EC2KEEPER_SSH_POLL_INTERVAL, and
EC2KEEPER_SSH_MAX_ATTEMPTS.

Credentials are read from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, and
AWS_SESSION_TOKEN.

Example:
  ec2keeper provision --tenant acme --pipeline build-42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Provision(cmd.Context(), *opts, args)
		},
	}

	cmd.Flags().StringVar(&args.TenantID, "tenant", "", "Tenant id (required)")
	cmd.Flags().StringVar(&args.PipelineID, "pipeline", "", "Pipeline id")
	cmd.Flags().BoolVar(&args.JSON, "json", false, "Output in JSON format")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}
