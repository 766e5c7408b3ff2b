package main

import (
	"github.com/spf13/cobra"

	"evalview/internal/naming"
	"evalview/internal/query"
)

var (
	queryModel        string
	queryCategory     string
	queryConversation string
	queryHasRawOutput string
	queryMinScore     string
	queryMaxScore     string
	queryView         string
	queryPage         int
	queryNames        string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Show one page of evaluations with aggregate scores",
	Long: `Filter the evaluation table and print one page of a view together with
count, average, minimum, maximum and median score over every matching row.

Examples:
  evalview query --model gpt-4o --min-score 3
  evalview query --view conversations --has-raw-output false --page 2
  evalview query --category grammar --format json`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryModel, "model", "", "Exact model name")
	queryCmd.Flags().StringVar(&queryCategory, "category", "", "Exact category")
	queryCmd.Flags().StringVar(&queryConversation, "conversation", "", "Exact conversation id")
	queryCmd.Flags().StringVar(&queryHasRawOutput, "has-raw-output", "", "Only rows with (true) or without (false) raw output")
	queryCmd.Flags().StringVar(&queryMinScore, "min-score", "", "Inclusive lower score bound")
	queryCmd.Flags().StringVar(&queryMaxScore, "max-score", "", "Inclusive upper score bound")
	queryCmd.Flags().StringVar(&queryView, "view", query.ViewResults, "View (results, conversations)")
	queryCmd.Flags().IntVar(&queryPage, "page", 1, "Page number, starting at 1")
	queryCmd.Flags().StringVar(&queryNames, "names", "", "Display-name file (.yaml or .toml)")
	rootCmd.AddCommand(queryCmd)
}

// QueryResponseCLI is a query result plus the names rows are shown under
type QueryResponseCLI struct {
	*query.Result
	Names naming.Lookup `json:"-"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	filter, err := query.ParseFilter(query.RawFilter{
		Model:          queryModel,
		Category:       queryCategory,
		ConversationID: queryConversation,
		HasRawOutput:   queryHasRawOutput,
		MinScore:       queryMinScore,
		MaxScore:       queryMaxScore,
	})
	if err != nil {
		return err
	}
	view, err := query.ViewByName(queryView, cfg.Query)
	if err != nil {
		return err
	}
	names, err := loadNames(queryNames)
	if err != nil {
		return err
	}

	db, engine, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := newContext()
	defer stop()

	res, err := engine.Query(ctx, filter, view.Page(queryPage), view)
	if err != nil {
		return err
	}
	return writeOutput(cmd, &QueryResponseCLI{Result: res, Names: names.Lookup()})
}
