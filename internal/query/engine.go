// Package query implements the read path over the evaluation table: filtered,
// paginated listings with aggregate score statistics over the whole filtered
// set.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"evalview/internal/config"
	"evalview/internal/errors"
	"evalview/internal/metrics"
	"evalview/internal/storage"
)

// canonicalColumns is the select list every row is returned with, in order.
var canonicalColumns = []string{
	"id", "model_name", "category", "conversation_id", "turn_number", "doc_id",
	"prompt", "response", "explanation", "score", "raw_output",
}

// columnAliases lists legacy column names accepted for a canonical column.
var columnAliases = map[string][]string{
	"prompt":   {"context"},
	"response": {"model_response"},
	"doc_id":   {"doc_internal_id"},
}

// Engine runs filtered queries against one evaluation table
type Engine struct {
	db     *storage.DB
	table  string
	logger *slog.Logger
}

// NewEngine creates a query engine for table
func NewEngine(db *storage.DB, table string, logger *slog.Logger) (*Engine, error) {
	if !config.IsIdentifier(table) {
		return nil, errors.New(errors.InvalidConfig, fmt.Sprintf("invalid table name %q", table), nil)
	}
	return &Engine{db: db, table: table, logger: logger}, nil
}

// Table returns the table the engine reads
func (e *Engine) Table() string {
	return e.table
}

// Stats summarizes score over a filtered set. Avg, Min, Max and Median are
// computed over non-NULL scores and are 0 when Scored is 0.
type Stats struct {
	Total  int64   `json:"total"`
	Scored int64   `json:"scored"`
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// Result is one page of a filtered view plus statistics over the whole set
type Result struct {
	View       string               `json:"view"`
	Filter     FilterSpec           `json:"filter"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"pageSize"`
	TotalCount int64                `json:"totalCount"`
	TotalPages int                  `json:"totalPages"`
	Stats      Stats                `json:"stats"`
	Rows       []storage.Evaluation `json:"rows"`
}

// columnSet maps canonical column names to the physical column present in
// the table ("" when absent).
type columnSet map[string]string

func (c columnSet) has(name string) bool {
	return c[name] != ""
}

// Query returns one page of view matching f. Count, statistics and the page
// are read inside a single transaction so they describe the same snapshot.
func (e *Engine) Query(ctx context.Context, f FilterSpec, req PageRequest, view View) (*Result, error) {
	start := time.Now()

	if req.Size <= 0 {
		req.Size = view.PageSize
	}
	if req.Page < 1 {
		metrics.QueryErrors.WithLabelValues(string(errors.InvalidPage)).Inc()
		return nil, errors.Newf(errors.InvalidPage, "page must be >= 1, got %d", req.Page)
	}
	if req.Size < 1 {
		metrics.QueryErrors.WithLabelValues(string(errors.InvalidPage)).Inc()
		return nil, errors.Newf(errors.InvalidPage, "page size must be >= 1, got %d", req.Size)
	}
	res := &Result{
		View:     view.Name,
		Filter:   f,
		Page:     req.Page,
		PageSize: req.Size,
		Rows:     []storage.Evaluation{},
	}

	err := e.db.WithReadTx(ctx, func(tx *sql.Tx) error {
		cols, err := e.columns(ctx, tx)
		if err != nil {
			return err
		}
		where, args := buildWhere(f, cols)

		if res.Stats, err = e.stats(ctx, tx, where, args, cols); err != nil {
			return err
		}
		res.TotalCount = res.Stats.Total
		if req.Offset() >= res.TotalCount {
			return nil
		}

		res.Rows, err = e.page(ctx, tx, where, args, cols, view, req)
		return err
	})
	if err != nil {
		metrics.QueryErrors.WithLabelValues(string(errors.CodeOf(err))).Inc()
		return nil, err
	}

	res.TotalPages = int((res.TotalCount + int64(req.Size) - 1) / int64(req.Size))
	metrics.QueryDuration.WithLabelValues(view.Name).Observe(time.Since(start).Seconds())

	e.logger.Debug("Query executed",
		"view", view.Name,
		"page", req.Page,
		"total", res.TotalCount,
		"rows", len(res.Rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// columns introspects the table so legacy layouts stay queryable
func (e *Engine) columns(ctx context.Context, tx *sql.Tx) (columnSet, error) {
	info, err := storage.TableColumns(ctx, tx, e.table)
	if err != nil {
		return nil, err
	}
	if len(info) == 0 {
		return nil, errors.New(errors.StoreNotFound, fmt.Sprintf("table %s does not exist", e.table), nil)
	}

	present := make(map[string]string, len(info))
	for _, c := range info {
		present[strings.ToLower(c.Name)] = c.Name
	}

	cols := make(columnSet, len(canonicalColumns))
	for _, name := range canonicalColumns {
		if actual, ok := present[name]; ok {
			cols[name] = actual
			continue
		}
		for _, alias := range columnAliases[name] {
			if actual, ok := present[alias]; ok {
				cols[name] = actual
				break
			}
		}
	}

	if !cols.has("id") || !cols.has("model_name") {
		return nil, errors.New(errors.InternalError,
			fmt.Sprintf("table %s has no id or model_name column", e.table), nil)
	}
	return cols, nil
}

// buildWhere ANDs every active predicate. Values are always bound; a
// predicate on a missing column can never be true and becomes "0".
func buildWhere(f FilterSpec, cols columnSet) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	eq := func(col string, v *string) {
		if v == nil {
			return
		}
		if !cols.has(col) {
			clauses = append(clauses, "0")
			return
		}
		clauses = append(clauses, cols[col]+" = ?")
		args = append(args, *v)
	}
	eq("model_name", f.Model)
	eq("category", f.Category)
	eq("conversation_id", f.ConversationID)

	if f.HasRawOutput != nil {
		switch {
		case !cols.has("raw_output"):
			if *f.HasRawOutput {
				clauses = append(clauses, "0")
			}
		case *f.HasRawOutput:
			clauses = append(clauses, "("+cols["raw_output"]+" IS NOT NULL AND "+cols["raw_output"]+" <> '')")
		default:
			clauses = append(clauses, "("+cols["raw_output"]+" IS NULL OR "+cols["raw_output"]+" = '')")
		}
	}

	bound := func(op string, v *float64) {
		if v == nil {
			return
		}
		if !cols.has("score") {
			clauses = append(clauses, "0")
			return
		}
		clauses = append(clauses, cols["score"]+" "+op+" ?")
		args = append(args, *v)
	}
	bound(">=", f.MinScore)
	bound("<=", f.MaxScore)

	return strings.Join(clauses, " AND "), args
}

func whereClause(where string, extra ...string) string {
	var parts []string
	if where != "" {
		parts = append(parts, where)
	}
	parts = append(parts, extra...)
	if len(parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

func (e *Engine) stats(ctx context.Context, tx *sql.Tx, where string, args []interface{}, cols columnSet) (Stats, error) {
	var s Stats

	if !cols.has("score") {
		err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+e.table+whereClause(where), args...).Scan(&s.Total)
		if err != nil {
			return s, fmt.Errorf("count query failed: %w", err)
		}
		return s, nil
	}

	score := cols["score"]
	var avg, lo, hi sql.NullFloat64
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT("+score+"), AVG("+score+"), MIN("+score+"), MAX("+score+") FROM "+e.table+whereClause(where),
		args...,
	).Scan(&s.Total, &s.Scored, &avg, &lo, &hi)
	if err != nil {
		return s, fmt.Errorf("stats query failed: %w", err)
	}
	if s.Scored == 0 {
		return s, nil
	}
	s.Avg, s.Min, s.Max = avg.Float64, lo.Float64, hi.Float64

	// Lower median: index (n-1)/2 of the ascending scores.
	medianArgs := append(append([]interface{}{}, args...), (s.Scored-1)/2)
	err = tx.QueryRowContext(ctx,
		"SELECT "+score+" FROM "+e.table+whereClause(where, score+" IS NOT NULL")+
			" ORDER BY "+score+" ASC LIMIT 1 OFFSET ?",
		medianArgs...,
	).Scan(&s.Median)
	if err != nil {
		return s, fmt.Errorf("median query failed: %w", err)
	}
	return s, nil
}

func (e *Engine) page(ctx context.Context, tx *sql.Tx, where string, args []interface{}, cols columnSet, view View, req PageRequest) ([]storage.Evaluation, error) {
	q := "SELECT " + selectList(cols) + " FROM " + e.table + whereClause(where) +
		" ORDER BY " + orderBy(view, cols) + " LIMIT ? OFFSET ?"
	pageArgs := append(append([]interface{}{}, args...), req.Size, req.Offset())

	rows, err := tx.QueryContext(ctx, q, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("page query failed: %w", err)
	}
	defer rows.Close()
	return scanEvaluations(rows)
}

func selectList(cols columnSet) string {
	parts := make([]string, len(canonicalColumns))
	for i, name := range canonicalColumns {
		switch {
		case name == "model_name":
			parts[i] = "COALESCE(" + cols[name] + ", '') AS model_name"
		case cols.has(name):
			parts[i] = cols[name] + " AS " + name
		default:
			parts[i] = "NULL AS " + name
		}
	}
	return strings.Join(parts, ", ")
}

func orderBy(view View, cols columnSet) string {
	var parts []string
	for _, key := range view.order {
		name, dir := strings.TrimSuffix(key, "-"), "ASC"
		if strings.HasSuffix(key, "-") {
			dir = "DESC"
		}
		if !cols.has(name) {
			continue
		}
		parts = append(parts, cols[name]+" "+dir)
	}
	if len(parts) == 0 {
		parts = append(parts, cols["id"]+" DESC")
	}
	return strings.Join(parts, ", ")
}

func scanEvaluations(rows *sql.Rows) ([]storage.Evaluation, error) {
	out := []storage.Evaluation{}
	for rows.Next() {
		var ev storage.Evaluation
		if err := rows.Scan(
			&ev.ID, &ev.ModelName, &ev.Category, &ev.ConversationID, &ev.TurnNumber, &ev.DocID,
			&ev.Prompt, &ev.Response, &ev.Explanation, &ev.Score, &ev.RawOutput,
		); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// FilterOptions lists the values offered as filter choices
type FilterOptions struct {
	Models     []string `json:"models"`
	Categories []string `json:"categories"`
}

// FilterOptions returns the distinct model names and categories, sorted
func (e *Engine) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	opts := &FilterOptions{Models: []string{}, Categories: []string{}}

	err := e.db.WithReadTx(ctx, func(tx *sql.Tx) error {
		cols, err := e.columns(ctx, tx)
		if err != nil {
			return err
		}
		if opts.Models, err = distinct(ctx, tx, e.table, cols["model_name"]); err != nil {
			return err
		}
		if cols.has("category") {
			opts.Categories, err = distinct(ctx, tx, e.table, cols["category"])
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return opts, nil
}

func distinct(ctx context.Context, tx *sql.Tx, table, col string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT DISTINCT "+col+" FROM "+table+" WHERE "+col+" IS NOT NULL AND "+col+" <> '' ORDER BY "+col)
	if err != nil {
		return nil, fmt.Errorf("distinct %s failed: %w", col, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Conversation returns every turn of one conversation for one model, in
// turn order.
func (e *Engine) Conversation(ctx context.Context, model, conversationID string) ([]storage.Evaluation, error) {
	var out []storage.Evaluation

	err := e.db.WithReadTx(ctx, func(tx *sql.Tx) error {
		cols, err := e.columns(ctx, tx)
		if err != nil {
			return err
		}
		if !cols.has("conversation_id") {
			out = []storage.Evaluation{}
			return nil
		}

		q := "SELECT " + selectList(cols) + " FROM " + e.table +
			" WHERE " + cols["model_name"] + " = ? AND " + cols["conversation_id"] + " = ?" +
			" ORDER BY " + orderBy(ConversationsView(0), cols)
		rows, err := tx.QueryContext(ctx, q, model, conversationID)
		if err != nil {
			return fmt.Errorf("conversation query failed: %w", err)
		}
		defer rows.Close()
		out, err = scanEvaluations(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
