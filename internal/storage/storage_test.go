package storage

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	everrors "evalview/internal/errors"
	"evalview/internal/slogutil"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "evaluations.db")
	db, err := Open(dbPath, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})

	if err := db.EnsureSchema(context.Background(), "evaluations"); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return db
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int64) *int64       { return &i }

func seed(t *testing.T, db *DB, n int) {
	t.Helper()
	records := make([]Evaluation, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, Evaluation{
			ModelName:      "model-" + string(rune('a'+i%3)),
			Category:       strPtr("grammar"),
			ConversationID: strPtr("c1"),
			TurnNumber:     intPtr(int64(i)),
			Prompt:         strPtr(strings.Repeat("p", 150)),
			Score:          floatPtr(float64(i) / 10),
		})
	}
	if _, err := db.InsertEvaluations(context.Background(), "evaluations", records); err != nil {
		t.Fatalf("InsertEvaluations() error = %v", err)
	}
}

func TestDatabaseInitialization(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := os.Stat(db.Path()); os.IsNotExist(err) {
		t.Fatalf("Database file was not created at %s", db.Path())
	}

	version, err := db.getSchemaVersion(ctx)
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", currentSchemaVersion, version)
	}

	// Running it twice must be harmless.
	if err := db.EnsureSchema(ctx, "evaluations"); err != nil {
		t.Fatalf("second EnsureSchema() error = %v", err)
	}
}

// legacyStore writes a store in rollback-journal mode, the way stores made by
// other tools arrive.
func legacyStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	for _, stmt := range []string{
		"CREATE TABLE evaluations (id INTEGER PRIMARY KEY, model_name TEXT, score REAL)",
		"INSERT INTO evaluations (model_name, score) VALUES ('m1', 1), ('m2', 2)",
	} {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestOpen_ExistingStoreKeepsJournalMode(t *testing.T) {
	path := legacyStore(t)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	db, err := Open(path, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()
	if n, err := db.RowCount(ctx, "evaluations"); err != nil || n != 2 {
		t.Fatalf("RowCount() = %d, %v", n, err)
	}
	if _, err := db.Inspect(ctx, 1); err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if err := db.Checkpoint(ctx); err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}
	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "delete" {
		t.Errorf("journal_mode = %q, want delete", mode)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Errorf("reading the store changed its bytes (header %v -> %v)", before[18:20], after[18:20])
	}
	for _, side := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(path + side); err == nil {
			t.Errorf("%s file left beside the store", side)
		}
	}
}

func TestOpen_NewStoreUsesWAL(t *testing.T) {
	db := setupTestDB(t)
	var mode string
	if err := db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestEnsureSchema_RejectsBadTable(t *testing.T) {
	db := setupTestDB(t)
	if err := db.EnsureSchema(context.Background(), "x; DROP TABLE evaluations"); err == nil {
		t.Error("expected error for invalid table name")
	}
}

func TestInsertAndCount(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, 7)

	n, err := db.RowCount(context.Background(), "evaluations")
	if err != nil {
		t.Fatalf("RowCount() error = %v", err)
	}
	if n != 7 {
		t.Errorf("RowCount() = %d, want 7", n)
	}
}

func TestInsertEvaluations_MissingTable(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.InsertEvaluations(ctx, "missing_table", []Evaluation{{ModelName: "m"}}); err == nil {
		t.Fatal("expected error inserting into a missing table")
	}
	n, err := db.RowCount(ctx, "evaluations")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("RowCount() = %d, want 0", n)
	}
}

func TestColumnsAndAddColumn(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE legacy (id INTEGER PRIMARY KEY, model_name TEXT)"); err != nil {
		t.Fatal(err)
	}

	exists, err := db.ColumnExists(ctx, "legacy", "raw_output")
	if err != nil {
		t.Fatalf("ColumnExists() error = %v", err)
	}
	if exists {
		t.Fatal("raw_output should not exist yet")
	}

	if err := db.AddColumn(ctx, "legacy", "raw_output", "TEXT"); err != nil {
		t.Fatalf("AddColumn() error = %v", err)
	}
	// Second call is a no-op.
	if err := db.AddColumn(ctx, "legacy", "raw_output", "TEXT"); err != nil {
		t.Fatalf("AddColumn() second call error = %v", err)
	}

	cols, err := db.Columns(ctx, "legacy")
	if err != nil {
		t.Fatalf("Columns() error = %v", err)
	}
	if len(cols) != 3 || cols[2].Name != "raw_output" {
		t.Errorf("Columns() = %+v", cols)
	}
	if !cols[0].PrimaryKey {
		t.Error("id should be reported as primary key")
	}
}

func TestAddColumn_RejectsBadIdentifiers(t *testing.T) {
	db := setupTestDB(t)
	if err := db.AddColumn(context.Background(), "evaluations", "x TEXT; --", "TEXT"); err == nil {
		t.Error("expected error for invalid column name")
	}
}

func TestTablesAndInspect(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, 3)
	ctx := context.Background()

	tables, err := db.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	want := map[string]bool{"evaluations": true, "schema_version": true}
	for _, name := range tables {
		delete(want, name)
	}
	if len(want) != 0 {
		t.Errorf("Tables() = %v, missing %v", tables, want)
	}

	infos, err := db.Inspect(ctx, 2)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	var evals *TableInfo
	for i := range infos {
		if infos[i].Name == "evaluations" {
			evals = &infos[i]
		}
	}
	if evals == nil {
		t.Fatal("evaluations table missing from Inspect()")
	}
	if evals.Rows != 3 {
		t.Errorf("Rows = %d, want 3", evals.Rows)
	}
	if len(evals.Sample) != 2 {
		t.Fatalf("len(Sample) = %d, want 2", len(evals.Sample))
	}
	prompt := evals.Sample[0]["prompt"]
	if !strings.HasSuffix(prompt, "...") || len([]rune(prompt)) != sampleValueLimit+3 {
		t.Errorf("prompt not truncated: %d runes", len([]rune(prompt)))
	}
	if evals.Sample[0]["raw_output"] != "NULL" {
		t.Errorf("raw_output = %q, want NULL", evals.Sample[0]["raw_output"])
	}
}

func TestDistinctValues(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, 7) // a,b,c,a,b,c,a

	values, err := db.DistinctValues(context.Background(), "evaluations", "model_name", 10)
	if err != nil {
		t.Fatalf("DistinctValues() error = %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("len(values) = %d, want 3", len(values))
	}
	if values[0].Value != "model-a" || values[0].Count != 3 {
		t.Errorf("values[0] = %+v, want model-a x3", values[0])
	}
}

func TestWithTx_Rollback(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, 2)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM evaluations"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithTx() error = %v, want sentinel", err)
	}

	n, _ := db.RowCount(ctx, "evaluations")
	if n != 2 {
		t.Errorf("RowCount() = %d after rollback, want 2", n)
	}
}

func fixedNow() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestBackup(t *testing.T) {
	for _, compression := range []string{CompressionNone, CompressionZstd} {
		t.Run(compression, func(t *testing.T) {
			db := setupTestDB(t)
			seed(t, db, 50)

			res, err := db.Backup(context.Background(), BackupOptions{Compression: compression, Now: fixedNow})
			if err != nil {
				t.Fatalf("Backup() error = %v", err)
			}

			wantPath := db.Path() + ".bak.20250102030405"
			if compression == CompressionZstd {
				wantPath += ".zst"
			}
			if res.Path != wantPath {
				t.Errorf("Path = %q, want %q", res.Path, wantPath)
			}
			if res.Compressed != (compression == CompressionZstd) {
				t.Errorf("Compressed = %v", res.Compressed)
			}

			info, err := os.Stat(db.Path())
			if err != nil {
				t.Fatal(err)
			}
			if res.SourceSize != info.Size() {
				t.Errorf("SourceSize = %d, want %d", res.SourceSize, info.Size())
			}

			if compression == CompressionNone {
				// The uncompressed copy must open as a store with every row.
				copyDB, err := Open(res.Path, slogutil.NewDiscardLogger())
				if err != nil {
					t.Fatalf("open backup: %v", err)
				}
				defer copyDB.Close()
				n, err := copyDB.RowCount(context.Background(), "evaluations")
				if err != nil {
					t.Fatal(err)
				}
				if n != 50 {
					t.Errorf("backup RowCount() = %d, want 50", n)
				}
			}
		})
	}
}

func TestBackup_RefusesToOverwrite(t *testing.T) {
	db := setupTestDB(t)
	opts := BackupOptions{Now: fixedNow}

	if _, err := db.Backup(context.Background(), opts); err != nil {
		t.Fatalf("first Backup() error = %v", err)
	}
	_, err := db.Backup(context.Background(), opts)
	if !everrors.HasCode(err, everrors.BackupFailure) {
		t.Errorf("second Backup() error = %v, want BACKUP_FAILURE", err)
	}
}

// fullDiskWriter accepts limit bytes and then fails like a full disk
type fullDiskWriter struct {
	f     *os.File
	limit int
}

func (w *fullDiskWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return 0, syscall.ENOSPC
	}
	if len(p) > w.limit {
		n, _ := w.f.Write(p[:w.limit])
		w.limit = 0
		return n, syscall.ENOSPC
	}
	w.limit -= len(p)
	return w.f.Write(p)
}

func (w *fullDiskWriter) Close() error { return w.f.Close() }

// truncatingWriter reports success but silently drops bytes past limit
type truncatingWriter struct {
	f     *os.File
	limit int
}

func (w *truncatingWriter) Write(p []byte) (int, error) {
	keep := len(p)
	if keep > w.limit {
		keep = w.limit
	}
	if keep > 0 {
		if _, err := w.f.Write(p[:keep]); err != nil {
			return 0, err
		}
		w.limit -= keep
	}
	return len(p), nil
}

func (w *truncatingWriter) Close() error { return w.f.Close() }

func TestBackup_Failures(t *testing.T) {
	tests := []struct {
		name   string
		create func(string) (io.WriteCloser, error)
	}{
		{
			name: "disk full",
			create: func(p string) (io.WriteCloser, error) {
				f, err := os.Create(p)
				if err != nil {
					return nil, err
				}
				return &fullDiskWriter{f: f, limit: 4096}, nil
			},
		},
		{
			name: "silent truncation",
			create: func(p string) (io.WriteCloser, error) {
				f, err := os.Create(p)
				if err != nil {
					return nil, err
				}
				return &truncatingWriter{f: f, limit: 4096}, nil
			},
		},
		{
			name: "cannot create",
			create: func(p string) (io.WriteCloser, error) {
				return nil, syscall.EACCES
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			seed(t, db, 200)

			_, err := db.Backup(context.Background(), BackupOptions{Now: fixedNow, CreateFile: tt.create})
			if !everrors.HasCode(err, everrors.BackupFailure) {
				t.Fatalf("Backup() error = %v, want BACKUP_FAILURE", err)
			}

			dest := db.Path() + ".bak.20250102030405"
			if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
				t.Errorf("partial backup %s left behind", dest)
			}
		})
	}
}

func TestFileBackuper(t *testing.T) {
	db := setupTestDB(t)
	b := &FileBackuper{DB: db, Options: BackupOptions{Now: fixedNow}}

	res, err := b.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("backup file missing: %v", err)
	}
}
