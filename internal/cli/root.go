package cli

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands. Environment
// variables fill the defaults; flags override.
type RootOptions struct {
	DataDir string `env:"BASIS_DATA_DIR" envDefault:"./data"`
	Econ    string `env:"BASIS_ECON_CONFIG"`
	Verbose bool   `env:"BASIS_VERBOSE"`
	Format  string `env:"BASIS_FORMAT" envDefault:"text"`
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the basisd CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	envErr := env.Parse(opts)

	cmd := &cobra.Command{
		Use:   "basisd",
		Short: "Basis UBI ledger server",
		Long: `Basis runs a small closed economy: every trusted member receives a
daily income, balances decay through demurrage, and membership is
granted by invitation and peer elections. All state lives in two
journaled SQLite files under the data directory.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return fmt.Errorf("parse environment: %w", envErr)
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", opts.Verbose, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", opts.Format, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", opts.DataDir, "directory holding the journal databases")
	cmd.PersistentFlags().StringVar(&opts.Econ, "econ", opts.Econ, "optional YAML file overriding economic parameters")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTickCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewAnchorCommand(opts))
	cmd.AddCommand(NewInviteAnchorCommand(opts))
	cmd.AddCommand(NewKeyCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
