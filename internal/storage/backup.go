package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	everrors "evalview/internal/errors"
	"evalview/internal/paths"
)

// Backup compression modes
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// BackupOptions controls how a store backup is written
type BackupOptions struct {
	// Compression is CompressionNone or CompressionZstd
	Compression string
	// Now stamps the backup file name; defaults to time.Now
	Now func() time.Time
	// CreateFile opens the destination for writing; defaults to os.Create.
	// Verification always re-reads the destination from disk.
	CreateFile func(path string) (io.WriteCloser, error)
}

// BackupResult describes a verified backup
type BackupResult struct {
	Path       string        `json:"path"`
	SourceSize int64         `json:"sourceSize"`
	SHA256     string        `json:"sha256"`
	Compressed bool          `json:"compressed"`
	Duration   time.Duration `json:"duration"`
}

// Backup copies the store file to a timestamped sibling and verifies the copy
// byte-for-byte by size and SHA-256. Any failure removes the partial copy and
// returns a BACKUP_FAILURE error.
func (db *DB) Backup(ctx context.Context, opts BackupOptions) (*BackupResult, error) {
	start := time.Now()

	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CreateFile == nil {
		opts.CreateFile = func(p string) (io.WriteCloser, error) { return os.Create(p) }
	}
	compressed := opts.Compression == CompressionZstd
	ext := ""
	if compressed {
		ext = ".zst"
	}

	if err := db.Checkpoint(ctx); err != nil {
		return nil, everrors.New(everrors.BackupFailure, "could not flush the write-ahead log before backup", err)
	}

	dest := paths.BackupPath(db.dbPath, opts.Now(), ext)
	if _, err := os.Stat(dest); err == nil {
		return nil, everrors.New(everrors.BackupFailure, fmt.Sprintf("backup %s already exists", dest), nil)
	}

	srcSize, srcSum, err := copyStore(db.dbPath, dest, compressed, opts.CreateFile)
	if err != nil {
		_ = os.Remove(dest)
		return nil, everrors.New(everrors.BackupFailure, fmt.Sprintf("failed to copy %s to %s", db.dbPath, dest), err)
	}

	gotSize, gotSum, err := hashBackup(dest, compressed)
	if err != nil {
		_ = os.Remove(dest)
		return nil, everrors.New(everrors.BackupFailure, fmt.Sprintf("failed to read back %s", dest), err)
	}
	if gotSize != srcSize || gotSum != srcSum {
		_ = os.Remove(dest)
		return nil, everrors.New(everrors.BackupFailure,
			fmt.Sprintf("backup verification failed: source %d bytes, copy %d bytes", srcSize, gotSize), nil).
			WithDetails(map[string]interface{}{
				"sourceSize":   srcSize,
				"backupSize":   gotSize,
				"sourceSha256": srcSum,
				"backupSha256": gotSum,
			})
	}

	res := &BackupResult{
		Path:       dest,
		SourceSize: srcSize,
		SHA256:     srcSum,
		Compressed: compressed,
		Duration:   time.Since(start),
	}
	db.logger.Info("Backup verified",
		"path", dest,
		"bytes", srcSize,
		"compressed", compressed,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// copyStore streams src into dest and returns the size and digest of src
func copyStore(src, dest string, compressed bool, create func(string) (io.WriteCloser, error)) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, "", err
	}

	out, err := create(dest)
	if err != nil {
		return 0, "", err
	}

	h := sha256.New()
	var w io.Writer = out
	var enc *zstd.Encoder
	if compressed {
		enc, err = zstd.NewWriter(out)
		if err != nil {
			out.Close()
			return 0, "", err
		}
		w = enc
	}

	n, err := io.Copy(w, io.TeeReader(in, h))
	if err != nil {
		if enc != nil {
			enc.Close()
		}
		out.Close()
		return 0, "", err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			out.Close()
			return 0, "", err
		}
	}
	if err := out.Close(); err != nil {
		return 0, "", err
	}
	if n != info.Size() {
		return 0, "", fmt.Errorf("short copy: read %d of %d bytes", n, info.Size())
	}

	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// hashBackup reads dest back from disk, decompressing when needed
func hashBackup(dest string, compressed bool) (int64, string, error) {
	f, err := os.Open(dest)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	var r io.Reader = f
	if compressed {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return 0, "", err
		}
		defer dec.Close()
		r = dec
	}

	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// FileBackuper backs up one store with fixed options
type FileBackuper struct {
	DB      *DB
	Options BackupOptions
}

// Backup implements the reconcile backup step
func (b *FileBackuper) Backup(ctx context.Context) (*BackupResult, error) {
	return b.DB.Backup(ctx, b.Options)
}
