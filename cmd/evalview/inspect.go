package main

import (
	"github.com/spf13/cobra"

	"evalview/internal/config"
	"evalview/internal/errors"
	"evalview/internal/storage"
)

var (
	inspectSample   int
	inspectDistinct string
	inspectLimit    int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show tables, columns and sample rows of the store",
	Long: `Describe the SQLite store: every table with its columns, row count and
a few sample rows. With --distinct, list the values of one column of the
evaluation table with their row counts instead.

Examples:
  evalview inspect
  evalview inspect --sample 0
  evalview inspect --distinct model_name`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectSample, "sample", 3, "Sample rows per table")
	inspectCmd.Flags().StringVar(&inspectDistinct, "distinct", "", "List distinct values of this column")
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 50, "Maximum distinct values")
	rootCmd.AddCommand(inspectCmd)
}

// InspectResponseCLI describes the store
type InspectResponseCLI struct {
	Store  string              `json:"store"`
	Tables []storage.TableInfo `json:"tables"`
}

// DistinctResponseCLI lists one column's values
type DistinctResponseCLI struct {
	Store  string               `json:"store"`
	Table  string               `json:"table"`
	Column string               `json:"column"`
	Values []storage.ValueCount `json:"values"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := newContext()
	defer stop()

	if inspectDistinct != "" {
		if !config.IsIdentifier(inspectDistinct) {
			return errors.Newf(errors.InvalidFilter, "invalid column name %q", inspectDistinct)
		}
		values, err := db.DistinctValues(ctx, cfg.Store.Table, inspectDistinct, inspectLimit)
		if err != nil {
			return err
		}
		return writeOutput(cmd, &DistinctResponseCLI{
			Store:  db.Path(),
			Table:  cfg.Store.Table,
			Column: inspectDistinct,
			Values: values,
		})
	}

	tables, err := db.Inspect(ctx, inspectSample)
	if err != nil {
		return err
	}
	return writeOutput(cmd, &InspectResponseCLI{Store: db.Path(), Tables: tables})
}
