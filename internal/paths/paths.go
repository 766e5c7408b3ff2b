// Package paths resolves the on-disk locations evalview works with: the
// SQLite store, its backups, and the artifacts directory.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	everrors "evalview/internal/errors"
)

// BackupStampLayout is the UTC timestamp embedded in backup file names.
const BackupStampLayout = "20060102150405"

// FindStore resolves the evaluation store.
// An explicit path must exist. Otherwise the first existing candidate
// (relative to root) wins, falling back to the lexically first *.db in root.
func FindStore(explicit, root string, candidates []string) (string, error) {
	if explicit != "" {
		if !isFile(explicit) {
			return "", everrors.New(everrors.StoreNotFound,
				fmt.Sprintf("store %s does not exist", explicit), nil)
		}
		return explicit, nil
	}

	for _, c := range candidates {
		p := c
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, c)
		}
		if isFile(p) {
			return p, nil
		}
	}

	matches, err := filepath.Glob(filepath.Join(root, "*.db"))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	for _, m := range matches {
		if isFile(m) {
			return m, nil
		}
	}

	return "", everrors.New(everrors.StoreNotFound,
		fmt.Sprintf("no .db file found in %s", root), nil)
}

// BackupPath returns the sibling path a backup of store taken at t is written to.
// ext is appended after the stamp (".zst" for compressed backups, "" otherwise).
func BackupPath(store string, t time.Time, ext string) string {
	return store + ".bak." + t.UTC().Format(BackupStampLayout) + ext
}

// RequireDir returns an ARTIFACTS_NOT_FOUND error unless dir is an existing directory.
func RequireDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return everrors.New(everrors.ArtifactsNotFound,
			fmt.Sprintf("evaluations dir not found: %s", dir), err)
	}
	return nil
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
