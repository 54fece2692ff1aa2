package cli

import (
	"github.com/spf13/cobra"

	"github.com/basisd/basis/internal/econ"
)

// InviteAnchorOptions holds flags for the invite-anchor command.
type InviteAnchorOptions struct {
	*RootOptions
	Amount int64
}

// NewInviteAnchorCommand creates the invite-anchor command.
func NewInviteAnchorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InviteAnchorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invite-anchor",
		Short: "Mint a server invitation for a founding anchor",
		Long: `Create an invitation sponsored by the server itself. The account
created from it starts with the given balance, newly minted, and
carries the anchor flag. This is how the first accounts on an empty
server come to exist.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, log, err := openServer(rootOpts)
			if err != nil {
				return err
			}
			defer srv.Close()

			code, err := srv.InviteAnchor(opts.Amount)
			if err != nil {
				return WrapExitError(ExitFailure, "invite anchor", err)
			}
			log.Info("anchor invitation created", "amount", opts.Amount)

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success([]string{"code", "amount"}, map[string]any{
				"code":   code,
				"amount": opts.Amount,
			})
		},
	}

	cmd.Flags().Int64Var(&opts.Amount, "amount", 1000*econ.Coin, "starting balance for the anchor account")

	return cmd
}
