package main

import (
	"os"

	"github.com/spf13/cobra"

	"evalview/internal/errors"
	"evalview/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Load an evaluation CSV into the store",
	Long: `Append the rows of an evaluation CSV to the evaluation table, creating
the store and table when needed. The header must name prompt_id, model_name,
category, prompt, model_response, score and explanation; conversation_id,
turn_number and raw_output are optional.

The file is validated completely before any row is written.

Examples:
  evalview import results.csv
  evalview import results.csv --db ./evaluations.db`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

// ImportResponseCLI reports an import
type ImportResponseCLI struct {
	Store  string `json:"store"`
	Source string `json:"source"`
	*ingest.Result
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return errors.New(errors.MalformedArtifact, "failed to open CSV", err)
	}
	defer f.Close()

	db, err := openOrCreateStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := newContext()
	defer stop()

	res, err := ingest.ImportCSV(ctx, db, cfg.Store.Table, f, logger)
	if err != nil {
		return err
	}
	return writeOutput(cmd, &ImportResponseCLI{Store: db.Path(), Source: args[0], Result: res})
}
