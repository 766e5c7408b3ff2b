package storage

import (
	"context"
	"database/sql"
	"fmt"

	"evalview/internal/config"
)

// Evaluation is one scored model interaction. Optional columns are pointers
// so NULL survives the round trip.
type Evaluation struct {
	ID             int64    `json:"id"`
	ModelName      string   `json:"model_name"`
	Category       *string  `json:"category,omitempty"`
	ConversationID *string  `json:"conversation_id,omitempty"`
	TurnNumber     *int64   `json:"turn_number,omitempty"`
	DocID          *int64   `json:"doc_id,omitempty"`
	Prompt         *string  `json:"prompt,omitempty"`
	Response       *string  `json:"response,omitempty"`
	Explanation    *string  `json:"explanation,omitempty"`
	Score          *float64 `json:"score,omitempty"`
	RawOutput      *string  `json:"raw_output,omitempty"`
}

// InsertEvaluations inserts records in a single transaction and returns the
// number of rows written. The whole batch is rolled back on the first error.
func (db *DB) InsertEvaluations(ctx context.Context, table string, records []Evaluation) (int, error) {
	if !config.IsIdentifier(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}

	inserted := 0
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO `+table+` (
				model_name, category, conversation_id, turn_number, doc_id,
				prompt, response, explanation, score, raw_output
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, r := range records {
			if _, err := stmt.ExecContext(ctx,
				r.ModelName, r.Category, r.ConversationID, r.TurnNumber, r.DocID,
				r.Prompt, r.Response, r.Explanation, r.Score, r.RawOutput,
			); err != nil {
				return fmt.Errorf("failed to insert record %d: %w", i, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	db.logger.Debug("Inserted evaluations", "table", table, "count", inserted)
	return inserted, nil
}
