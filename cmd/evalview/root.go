package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"evalview/internal/config"
	"evalview/internal/errors"
	"evalview/internal/slogutil"
	"evalview/internal/version"
)

var (
	dbFlag     string
	tableFlag  string
	formatFlag string
	verbosity  int
	quietFlag  bool

	// cfg and logger are set before any command runs
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "evalview",
	Short: "evalview - browse and reconcile LLM evaluation results",
	Long: `evalview serves a SQLite store of scored model evaluations over a JSON
API and keeps the store consistent with the JSON artifacts the evaluation
pipeline writes.

Every command that writes to the store runs as a dry run unless --apply is
given, and takes a verified backup before the first write.`,
	Version:           version.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.SetVersionTemplate("evalview version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Path to the SQLite store (default: discovered in the working directory)")
	rootCmd.PersistentFlags().StringVar(&tableFlag, "table", "", "Evaluation table name (default from config)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", string(FormatHuman), "Output format (json, human)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all logs")
}

// setup loads configuration and builds the logger shared by every command
func setup(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}

	cfg, err = config.LoadConfig(root)
	if err != nil {
		return errors.New(errors.InvalidConfig, "failed to load config", err)
	}
	if tableFlag != "" {
		cfg.Store.Table = tableFlag
	}
	if err := cfg.Validate(); err != nil {
		return errors.New(errors.InvalidConfig, "invalid configuration", err)
	}

	switch OutputFormat(formatFlag) {
	case FormatJSON, FormatHuman:
	default:
		return errors.Newf(errors.InvalidConfig, "unsupported format: %s", formatFlag)
	}

	level := slogutil.LevelFromVerbosity(verbosity, quietFlag, slogutil.LevelFromString(cfg.Logging.Level))
	logger = slogutil.New(cmd.ErrOrStderr(), cfg.Logging.Format, level)

	logger.Debug("Configuration loaded",
		"root", root,
		"table", cfg.Store.Table,
		"store", fmt.Sprintf("%q", cfg.Store.Path),
	)
	return nil
}
