package cli

import (
	"encoding/hex"

	"github.com/spf13/cobra"
)

// NewKeyCommand creates the key command group.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the burn receipt signing key",
		Long: `Manage the ed25519 master key the server uses to sign burn
receipts. The private key never leaves the data directory except
through the generate command, which prints it once for archiving.`,
	}

	cmd.AddCommand(newKeyGenerateCommand(rootOpts))
	cmd.AddCommand(newKeyImportCommand(rootOpts))
	cmd.AddCommand(newKeyPublicCommand(rootOpts))

	return cmd
}

func newKeyGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate and install a fresh signing key",
		Long: `Generate a new ed25519 key pair, install it as the master key and
print the private key as hex. Archive the printed key; it is the only
way to verify old receipts if the data directory is lost.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, log, err := openServer(rootOpts)
			if err != nil {
				return err
			}
			defer srv.Close()

			priv, err := srv.GenerateMasterKey()
			if err != nil {
				return WrapExitError(ExitFailure, "generate master key", err)
			}
			log.Info("master key installed")

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success([]string{"private_key", "public_key"}, map[string]any{
				"private_key": hex.EncodeToString(priv),
				"public_key":  srv.GetPublicKey(),
			})
		},
	}
}

func newKeyImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "import <private-key-hex>",
		Short:         "Install a previously archived signing key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := hex.DecodeString(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "decode private key", err)
			}

			srv, log, err := openServer(rootOpts)
			if err != nil {
				return err
			}
			defer srv.Close()

			if err := srv.SetMasterKey(priv); err != nil {
				return WrapExitError(ExitFailure, "install master key", err)
			}
			log.Info("master key installed")
			return nil
		},
	}
}

func newKeyPublicCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "public",
		Short:         "Print the receipt-verifying public key",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, _, err := openServer(rootOpts)
			if err != nil {
				return err
			}
			defer srv.Close()

			pub := srv.GetPublicKey()
			if pub == "" {
				return NewExitError(ExitFailure, "no master key installed")
			}

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success([]string{"public_key"}, map[string]any{"public_key": pub})
		},
	}
}
