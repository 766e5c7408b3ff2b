package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"evalview/internal/config"
)

// sampleValueLimit truncates long text values in SampleRows output
const sampleValueLimit = 100

// ColumnInfo describes one column as reported by PRAGMA table_info
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"notNull"`
	PrimaryKey bool   `json:"primaryKey"`
}

// TableInfo summarizes a table for the inspect command
type TableInfo struct {
	Name    string              `json:"name"`
	Columns []ColumnInfo        `json:"columns"`
	Rows    int64               `json:"rows"`
	Sample  []map[string]string `json:"sample,omitempty"`
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tables lists user tables in name order
func (db *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Columns returns the columns of table in declaration order
func (db *DB) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	return TableColumns(ctx, db.conn, table)
}

// TableColumns reads PRAGMA table_info through q so callers inside a
// transaction see the same schema as their other statements.
func TableColumns(ctx context.Context, q queryer, table string) ([]ColumnInfo, error) {
	if !config.IsIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, ColumnInfo{
			Name:       name,
			Type:       colType,
			NotNull:    notNull != 0,
			PrimaryKey: pk != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

// ColumnExists reports whether table has a column named column
func (db *DB) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	cols, err := db.Columns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if strings.EqualFold(c.Name, column) {
			return true, nil
		}
	}
	return false, nil
}

// AddColumn adds a nullable column. It is a no-op when the column exists.
func (db *DB) AddColumn(ctx context.Context, table, column, colType string) error {
	if !config.IsIdentifier(table) || !config.IsIdentifier(column) || !config.IsIdentifier(colType) {
		return fmt.Errorf("invalid identifier in ALTER TABLE %s ADD COLUMN %s %s", table, column, colType)
	}

	exists, err := db.ColumnExists(ctx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if _, err := db.ExecContext(ctx, "ALTER TABLE "+table+" ADD COLUMN "+column+" "+colType); err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}
	db.logger.Info("Added column", "table", table, "column", column, "type", colType)
	return nil
}

// RowCount returns the number of rows in table
func (db *DB) RowCount(ctx context.Context, table string) (int64, error) {
	if !config.IsIdentifier(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// SampleRows returns up to limit rows of table as column → text maps, with
// long values truncated.
func (db *DB) SampleRows(ctx context.Context, table string, limit int) ([]map[string]string, error) {
	if !config.IsIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table+" LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]string
	for rows.Next() {
		values := make([]interface{}, len(names))
		ptrs := make([]interface{}, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]string, len(names))
		for i, name := range names {
			row[name] = truncate(formatValue(values[i]), sampleValueLimit)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Inspect gathers columns, row counts and samples for every table
func (db *DB) Inspect(ctx context.Context, sampleSize int) ([]TableInfo, error) {
	tables, err := db.Tables(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]TableInfo, 0, len(tables))
	for _, name := range tables {
		if !config.IsIdentifier(name) {
			db.logger.Warn("Skipping table with unsupported name", "table", name)
			continue
		}
		cols, err := db.Columns(ctx, name)
		if err != nil {
			return nil, err
		}
		count, err := db.RowCount(ctx, name)
		if err != nil {
			return nil, err
		}
		info := TableInfo{Name: name, Columns: cols, Rows: count}
		if sampleSize > 0 {
			if info.Sample, err = db.SampleRows(ctx, name, sampleSize); err != nil {
				return nil, err
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// DistinctValues returns the distinct non-empty values of column with their
// row counts, most frequent first.
func (db *DB) DistinctValues(ctx context.Context, table, column string, limit int) ([]ValueCount, error) {
	if !config.IsIdentifier(table) || !config.IsIdentifier(column) {
		return nil, fmt.Errorf("invalid identifier %s.%s", table, column)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+column+`, COUNT(*) FROM `+table+`
		WHERE `+column+` IS NOT NULL AND `+column+` <> ''
		GROUP BY `+column+`
		ORDER BY COUNT(*) DESC, `+column+`
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read distinct %s: %w", column, err)
	}
	defer rows.Close()

	var out []ValueCount
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, err
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// ValueCount pairs a column value with the number of rows holding it
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
