package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/ec2keeper/cmd/ec2keeper/handlers"
)

// Keys returns the keys command group.
func Keys(opts *handlers.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored SSH private keys",
	}

	cmd.AddCommand(keysCreate(opts))
	cmd.AddCommand(keysGet(opts))
	cmd.AddCommand(keysVerify(opts))
	cmd.AddCommand(keysRepair())
	cmd.AddCommand(keysList(opts))

	return cmd
}

func keysCreate(opts *handlers.Options) *cobra.Command {
	var args handlers.KeysCreateArgs

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Store a private key, or mint a new key pair in the cloud",
		Long: `Create stores a private key for a key pair.

With --file the key is read from disk; a key that lost its line breaks is
repaired first. With --mint a new key pair is created in the cloud and its
private key is stored. The key is also written to the local key directory
with mode 0600.

Examples:
  ec2keeper keys create --pair deploy --file ~/.ssh/deploy.pem
  ec2keeper keys create --pair deploy --mint --region eu-west-1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.KeysCreate(cmd.Context(), *opts, args)
		},
	}

	cmd.Flags().StringVar(&args.PairName, "pair", "", "Key pair name (required)")
	cmd.Flags().StringVar(&args.Name, "name", "", "Display name (default: key pair name)")
	cmd.Flags().StringVarP(&args.File, "file", "f", "", "Path to the PEM private key")
	cmd.Flags().BoolVar(&args.Mint, "mint", false, "Create a new key pair in the cloud")
	cmd.Flags().StringVar(&args.Region, "region", "", "Region for --mint (default: from config)")
	_ = cmd.MarkFlagRequired("pair")
	cmd.MarkFlagsMutuallyExclusive("file", "mint")

	return cmd
}

func keysGet(opts *handlers.Options) *cobra.Command {
	var args handlers.KeysGetArgs

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print a stored private key",
		Long: `Get prints a private key selected by record id, key pair name, or
instance. For --instance the key pair of the instance is looked up and the
key is searched in the store, the archive, and well-known file locations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.KeysGet(cmd.Context(), *opts, args)
		},
	}

	cmd.Flags().StringVar(&args.ID, "id", "", "Key record id")
	cmd.Flags().StringVar(&args.PairName, "pair", "", "Key pair name")
	cmd.Flags().StringVar(&args.InstanceID, "instance", "", "Instance id")
	cmd.Flags().StringVar(&args.Region, "region", "", "Region for --instance (default: from config)")
	cmd.Flags().BoolVarP(&args.Write, "write", "w", false, "Write the key to the key directory and print its path")
	cmd.Flags().BoolVar(&args.JSON, "json", false, "Print the record without key material as JSON")
	cmd.MarkFlagsMutuallyExclusive("id", "pair", "instance")

	return cmd
}

func keysVerify(opts *handlers.Options) *cobra.Command {
	var pairName, host string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that a stored key logs in to a host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.KeysVerify(cmd.Context(), *opts, pairName, host)
		},
	}

	cmd.Flags().StringVar(&pairName, "pair", "", "Key pair name (required)")
	cmd.Flags().StringVar(&host, "host", "", "Host to log in to (required)")
	_ = cmd.MarkFlagRequired("pair")
	_ = cmd.MarkFlagRequired("host")

	return cmd
}

func keysRepair() *cobra.Command {
	return &cobra.Command{
		Use:   "repair [FILE]",
		Short: "Print a PEM key with its line structure restored",
		Long: `Repair restores the 64-column line structure of a PEM key whose line
breaks were lost, for example by pasting it into a single-line field.
Reads stdin when no file is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return handlers.KeysRepair(path)
		},
	}
}

func keysList(opts *handlers.Options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.KeysList(cmd.Context(), *opts, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}
