package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/rulesql/internal/config"
	"github.com/roach88/rulesql/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Config is resolved before any subcommand runs. Commands built
	// without the root (tests) fall back to defaults.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rulesql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rulesql",
		Short: "rulesql - rule-driven SQL for declared entities",
		Long: `rulesql validates entity definitions, renders the SQL their attribute
rules allow, and executes it inside a transaction.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.resolve(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", config.DefaultFormat, "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default: ./rulesql.yaml)")
	flags.String("driver", config.DefaultDriver, "database driver (sqlite3|mysql|pgx|duckdb)")
	flags.String("dsn", config.DefaultDSN, "database data source name")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")
	flags.String("specs", "", "default entity definitions path")

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve loads the layered configuration and builds the logger.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigFile, cmd.Flags())
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}
	o.Config = cfg
	o.Format = cfg.Format

	level, err := cfg.LogLevel()
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	o.logger().Debug("configuration loaded",
		slog.String("file", cfg.File),
		slog.String("driver", cfg.Database.Driver),
	)
	return nil
}

// logger returns the configured logger, or a discard logger.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// storeConfig returns the configured backend, or the in-memory default.
func (o *RootOptions) storeConfig() store.Config {
	if o.Config == nil {
		return store.DefaultConfig()
	}
	return o.Config.Store()
}

// specsPath returns the configured default specs path.
func (o *RootOptions) specsPath() string {
	if o.Config == nil {
		return ""
	}
	return o.Config.Specs
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
