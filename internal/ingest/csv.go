// Package ingest loads evaluation logs into the store.
package ingest

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"evalview/internal/errors"
	"evalview/internal/storage"
)

// requiredColumns must appear in the CSV header
var requiredColumns = []string{
	"prompt_id", "model_name", "category", "prompt", "model_response", "score", "explanation",
}

// Result summarises one import
type Result struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

// ImportCSV reads an evaluation log with a header row and inserts every row
// into table in one transaction. A bad row aborts the import with its line
// number and nothing is written.
//
// prompt_id values like "p42" are stored as doc_id 42. The prompt id also
// becomes the conversation id unless a conversation_id column is present.
func ImportCSV(ctx context.Context, db *storage.DB, table string, r io.Reader, logger *slog.Logger) (*Result, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.Newf(errors.MalformedArtifact, "csv is empty")
	}
	if err != nil {
		return nil, errors.New(errors.MalformedArtifact, "failed to read csv header", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := col[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Newf(errors.MalformedArtifact, "csv header lacks %s", strings.Join(missing, ", "))
	}

	var records []storage.Evaluation
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if stderrors.As(err, &pe) {
				return nil, errors.New(errors.MalformedArtifact, fmt.Sprintf("line %d: unreadable row", pe.Line), err)
			}
			return nil, errors.New(errors.MalformedArtifact, "unreadable row", err)
		}
		line, _ := cr.FieldPos(0)

		rec, err := parseRow(row, col)
		if err != nil {
			return nil, errors.New(errors.MalformedArtifact, fmt.Sprintf("line %d: %s", line, err.Error()), nil)
		}
		records = append(records, rec)
	}

	if err := db.EnsureSchema(ctx, table); err != nil {
		return nil, err
	}
	n, err := db.InsertEvaluations(ctx, table, records)
	if err != nil {
		return nil, errors.New(errors.ApplyFailure, "import failed, nothing written", err)
	}

	logger.Info("Imported evaluations", "table", table, "rows", n)
	return &Result{Table: table, Rows: n}, nil
}

func parseRow(row []string, col map[string]int) (storage.Evaluation, error) {
	get := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	rec := storage.Evaluation{ModelName: strings.TrimSpace(get("model_name"))}
	if rec.ModelName == "" {
		return rec, fmt.Errorf("model_name is empty")
	}

	promptID := strings.TrimSpace(get("prompt_id"))
	if promptID != "" {
		if doc, err := strconv.ParseInt(strings.TrimPrefix(promptID, "p"), 10, 64); err == nil {
			rec.DocID = &doc
		}
	}
	if conv := strings.TrimSpace(get("conversation_id")); conv != "" {
		rec.ConversationID = &conv
	} else if promptID != "" {
		rec.ConversationID = &promptID
	}

	if raw := strings.TrimSpace(get("turn_number")); raw != "" {
		turn, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return rec, fmt.Errorf("turn_number %q is not an integer", raw)
		}
		rec.TurnNumber = &turn
	}

	if raw := strings.TrimSpace(get("score")); raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
			return rec, fmt.Errorf("score %q is not a finite number", raw)
		}
		rec.Score = &score
	}

	rec.Category = optional(get("category"))
	rec.Prompt = optional(get("prompt"))
	rec.Response = optional(get("model_response"))
	rec.Explanation = optional(get("explanation"))
	return rec, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
