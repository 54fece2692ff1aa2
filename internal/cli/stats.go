package cli

import (
	"github.com/spf13/cobra"

	"github.com/basisd/basis/internal/econ"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Print the aggregate ledger statistics",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, _, err := openServer(rootOpts)
			if err != nil {
				return err
			}
			defer srv.Close()

			params, err := econ.Load(rootOpts.Econ)
			if err != nil {
				return WrapExitError(ExitCommandError, "load economic parameters", err)
			}

			stats := srv.GetServerStats()
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			keys := []string{"day", "total_days", "users", "trusted", "total_money", "total_tx", "recent_tx", "server_balance"}
			return f.Success(keys, map[string]any{
				"day":            int32(stats.EpochDay),
				"total_days":     stats.TotalDays,
				"users":          stats.UserCount,
				"trusted":        stats.TotalTrusted,
				"total_money":    params.FormatMoneyTicker(stats.TotalMoney),
				"total_tx":       stats.TotalTx,
				"recent_tx":      stats.RecentTx,
				"server_balance": params.FormatMoneyTicker(stats.ServerBalance),
			})
		},
	}
}
