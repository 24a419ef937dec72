package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/ec2keeper/cmd/ec2keeper/handlers"
)

// Diagnose returns the command for diagnosing instance reachability.
//
// Optional flags:
//
//	--region: Region of the instance (default: from config)
//	--key-pair: Expected key pair name (default: from config)
//	--json: Output in JSON format
func Diagnose(opts *handlers.Options) *cobra.Command {
	var args handlers.DiagnoseArgs

	cmd := &cobra.Command{
		Use:   "diagnose INSTANCE_ID",
		Short: "Explain why an instance is or is not reachable over SSH",
		Long: `Diagnose runs a series of checks against an instance:

  - Instance exists and is running
  - Instance has a public address
  - ICMP echo (informational, often filtered)
  - SSH port accepts connections
  - Security groups admit the SSH port
  - Key pair name matches
  - Stored key logs in (when the port is open)

The command exits non-zero when the instance is not reachable.

Examples:
  # Diagnose an instance
  ec2keeper diagnose i-0123456789abcdef0

  # Get the report in JSON format
  ec2keeper diagnose i-0123456789abcdef0 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			args.InstanceID = pos[0]
			return handlers.Diagnose(cmd.Context(), *opts, args)
		},
	}

	cmd.Flags().StringVar(&args.Region, "region", "", "Region of the instance (default: from config)")
	cmd.Flags().StringVar(&args.KeyPairName, "key-pair", "", "Expected key pair name (default: from config)")
	cmd.Flags().BoolVar(&args.JSON, "json", false, "Output in JSON format")

	return cmd
}
