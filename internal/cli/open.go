package cli

import (
	"log/slog"
	"os"

	"github.com/basisd/basis/internal/econ"
	"github.com/basisd/basis/internal/server"
)

// setupLogging installs the process-wide slog handler.
func setupLogging(opts *RootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// openServer loads the economic parameters and restores the server
// from the data directory, creating it on first use.
func openServer(opts *RootOptions) (*server.Server, *slog.Logger, error) {
	log := setupLogging(opts)

	params, err := econ.Load(opts.Econ)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load economic parameters", err)
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "create data directory", err)
	}

	srv, err := server.Open(opts.DataDir, params, log)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open server state", err)
	}
	return srv, log, nil
}
