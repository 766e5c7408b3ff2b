// Package reconcile matches JSON evaluation artifacts against stored rows and
// applies backed-up, idempotent corrections.
//
// A run moves through Scan → Plan → Report and, only when apply is requested,
// Backup → Apply → Verify. Without apply the run ends in ReportedDryRun and
// the store is never written.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"evalview/internal/config"
	"evalview/internal/errors"
	"evalview/internal/storage"
)

// Operation names a reconciliation pass
type Operation string

const (
	// OpBackfill fills the target column where it is empty
	OpBackfill Operation = "backfill"
	// OpRename rewrites slug identities to the artifacts' display identity
	OpRename Operation = "rename"
	// OpSuffixRename rewrites identities ending in a configured suffix
	OpSuffixRename Operation = "rename-suffix"
)

// State is a step of the reconciliation state machine
type State string

const (
	StatePlanned        State = "planned"
	StateReportedDryRun State = "reported-dry-run"
	StateBackupFailed   State = "backup-failed"
	StateApplied        State = "applied"
)

// Backuper takes a verified copy of the store before any mutation
type Backuper interface {
	Backup(ctx context.Context) (*storage.BackupResult, error)
}

// Options names the columns reconciliation reads and writes
type Options struct {
	IdentityColumn string
	KeyColumn      string
	TargetColumn   string
	// VerifySample bounds the rows shown after apply
	VerifySample int
}

// DefaultOptions matches the default evaluation table layout
func DefaultOptions() Options {
	return Options{
		IdentityColumn: "model_name",
		KeyColumn:      "conversation_id",
		TargetColumn:   "raw_output",
		VerifySample:   10,
	}
}

// Updater plans and applies reconciliation runs against one table
type Updater struct {
	db     *storage.DB
	table  string
	backup Backuper
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Updater. Every name that ends up in SQL text is checked.
func New(db *storage.DB, table string, backup Backuper, opts Options, logger *slog.Logger) (*Updater, error) {
	for _, id := range []string{table, opts.IdentityColumn, opts.KeyColumn, opts.TargetColumn} {
		if !config.IsIdentifier(id) {
			return nil, errors.Newf(errors.InvalidConfig, "invalid SQL identifier %q", id)
		}
	}
	if opts.VerifySample <= 0 {
		opts.VerifySample = DefaultOptions().VerifySample
	}
	return &Updater{
		db:     db,
		table:  table,
		backup: backup,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}, nil
}

// requireColumns fails unless the table holds every named column
func (u *Updater) requireColumns(ctx context.Context, cols ...string) error {
	info, err := u.db.Columns(ctx, u.table)
	if err != nil {
		return err
	}
	if len(info) == 0 {
		return errors.New(errors.StoreNotFound, fmt.Sprintf("table %s does not exist", u.table), nil)
	}

	present := make(map[string]bool, len(info))
	for _, c := range info {
		present[c.Name] = true
	}
	for _, c := range cols {
		if !present[c] {
			return errors.New(errors.InvalidConfig,
				fmt.Sprintf("table %s has no %s column", u.table, c), nil)
		}
	}
	return nil
}
