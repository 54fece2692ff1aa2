package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/basisd/basis/internal/errcode"
)

// AnchorOptions holds flags for the anchor command.
type AnchorOptions struct {
	*RootOptions
	Clear bool
}

// NewAnchorCommand creates the anchor command.
func NewAnchorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnchorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "anchor <user-id>",
		Short: "Grant or revoke an account's permanent trust",
		Long: `Set the anchor flag on an account. Anchors count as trusted without
any election and cannot be challenged; they are the operator-appointed
backbone of the trust graph.

Example:
  basisd anchor 0
  basisd anchor --clear 17`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return WrapExitError(ExitCommandError, "parse user ID", err)
			}

			srv, log, err := openServer(rootOpts)
			if err != nil {
				return err
			}
			defer srv.Close()

			code, err := srv.SetAnchorLocal(int32(userID), !opts.Clear)
			if err != nil {
				return WrapExitError(ExitFailure, "set anchor", err)
			}
			if code != errcode.OK {
				return NewExitError(ExitFailure, "set anchor refused: "+code.String())
			}
			log.Info("anchor flag updated", "user", userID, "anchor", !opts.Clear)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "revoke the anchor flag instead of granting it")

	return cmd
}
