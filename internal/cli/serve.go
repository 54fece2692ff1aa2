package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	SuperUsers []int32
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger server",
		Long: `Run the ledger server until interrupted.

State is restored from the data directory (created on first start),
the catch-up tick runs immediately if the simulated day is behind, and
afterwards a scheduler checks once a minute whether a new day has to
be processed.

Example:
  basisd serve --data-dir /var/lib/basis
  basisd serve --data-dir ./data --super-user 0 --super-user 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().Int32SliceVar(&opts.SuperUsers, "super-user", nil, "user ID allowed to use admin calls (repeatable)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	srv, log, err := openServer(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("closing journals", "error", closeErr)
		}
	}()

	srv.SetSuperUsers(opts.SuperUsers)

	// Catch up missed days before taking traffic; each pass advances
	// one day, so a long outage resolves in a quick burst here.
	for {
		before := srv.GetServerStats().EpochDay
		if err := srv.CheckTick(false); err != nil {
			return WrapExitError(ExitFailure, "catch-up tick", err)
		}
		if srv.GetServerStats().EpochDay == before {
			break
		}
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	tickErr := make(chan error, 1)
	go func() { tickErr <- srv.RunTickLoop(ctx) }()

	log.Info("server running", "data_dir", opts.DataDir)

	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig)
	case <-srv.ShutdownRequested():
		log.Info("shutdown requested by super user")
	case err := <-tickErr:
		if err != nil && ctx.Err() == nil {
			return WrapExitError(ExitFailure, "tick scheduler", err)
		}
	}

	cancel()
	if err := srv.TakeSnapshot(); err != nil {
		return WrapExitError(ExitFailure, "final snapshot", err)
	}
	log.Info("server stopped")
	return nil
}
