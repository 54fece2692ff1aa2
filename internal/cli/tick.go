package cli

import (
	"github.com/spf13/cobra"
)

// NewTickCommand creates the tick command.
func NewTickCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Force one daily economic step",
		Long: `Run one daily tick against the stored state and snapshot it,
regardless of whether the simulated day is behind. Intended for
operational testing; the serve command ticks on its own schedule.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, _, err := openServer(rootOpts)
			if err != nil {
				return err
			}
			defer srv.Close()

			if err := srv.CheckTick(true); err != nil {
				return WrapExitError(ExitFailure, "tick", err)
			}

			stats := srv.GetServerStats()
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success([]string{"day", "users", "trusted"}, map[string]any{
				"day":     int32(stats.EpochDay),
				"users":   stats.UserCount,
				"trusted": stats.TotalTrusted,
			})
		},
	}
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "snapshot",
		Short:         "Snapshot both stores and truncate their logs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, log, err := openServer(rootOpts)
			if err != nil {
				return err
			}
			defer srv.Close()

			if err := srv.TakeSnapshot(); err != nil {
				return WrapExitError(ExitFailure, "snapshot", err)
			}
			log.Info("snapshot complete")
			return nil
		},
	}
}
