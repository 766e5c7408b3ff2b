package paths

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	everrors "evalview/internal/errors"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFindStore_Explicit(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "custom.db")
	touch(t, db)

	got, err := FindStore(db, dir, nil)
	if err != nil {
		t.Fatalf("FindStore() error = %v", err)
	}
	if got != db {
		t.Errorf("FindStore() = %q, want %q", got, db)
	}

	_, err = FindStore(filepath.Join(dir, "missing.db"), dir, nil)
	if !everrors.HasCode(err, everrors.StoreNotFound) {
		t.Errorf("expected STORE_NOT_FOUND, got %v", err)
	}
}

func TestFindStore_CandidateOrder(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "model_results.db"))
	touch(t, filepath.Join(dir, "evaluations.db"))

	got, err := FindStore("", dir, []string{"missing.db", "evaluations.db", "model_results.db"})
	if err != nil {
		t.Fatalf("FindStore() error = %v", err)
	}
	if filepath.Base(got) != "evaluations.db" {
		t.Errorf("FindStore() = %q, want evaluations.db", got)
	}
}

func TestFindStore_GlobFallback(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "zeta.db"))
	touch(t, filepath.Join(dir, "alpha.db"))
	touch(t, filepath.Join(dir, "alpha.db.bak.20250101000000"))

	got, err := FindStore("", dir, []string{"nope.db"})
	if err != nil {
		t.Fatalf("FindStore() error = %v", err)
	}
	if filepath.Base(got) != "alpha.db" {
		t.Errorf("FindStore() = %q, want alpha.db", got)
	}
}

func TestFindStore_NothingFound(t *testing.T) {
	_, err := FindStore("", t.TempDir(), []string{"evaluations.db"})
	if !everrors.HasCode(err, everrors.StoreNotFound) {
		t.Errorf("expected STORE_NOT_FOUND, got %v", err)
	}
}

func TestBackupPath(t *testing.T) {
	stamp := time.Date(2025, 12, 15, 20, 46, 37, 0, time.FixedZone("CET", 3600))

	if got := BackupPath("/data/evals.db", stamp, ""); got != "/data/evals.db.bak.20251215194637" {
		t.Errorf("BackupPath() = %q", got)
	}
	if got := BackupPath("evals.db", stamp, ".zst"); got != "evals.db.bak.20251215194637.zst" {
		t.Errorf("BackupPath(zst) = %q", got)
	}
}

func TestRequireDir(t *testing.T) {
	dir := t.TempDir()
	if err := RequireDir(dir); err != nil {
		t.Errorf("RequireDir(existing) = %v", err)
	}

	file := filepath.Join(dir, "f.json")
	touch(t, file)
	for _, p := range []string{file, filepath.Join(dir, "missing")} {
		if err := RequireDir(p); !everrors.HasCode(err, everrors.ArtifactsNotFound) {
			t.Errorf("RequireDir(%q) = %v, want ARTIFACTS_NOT_FOUND", p, err)
		}
	}
}
