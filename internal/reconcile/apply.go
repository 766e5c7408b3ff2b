package reconcile

import (
	"context"
	"fmt"
	"time"

	"evalview/internal/errors"
	"evalview/internal/metrics"
	"evalview/internal/naming"
	"evalview/internal/storage"
)

// PairFailure records a pair whose update statement failed
type PairFailure struct {
	Pair  Pair             `json:"pair"`
	Code  errors.ErrorCode `json:"code"`
	Error string           `json:"error"`
}

// Report is the outcome of a run
type Report struct {
	RunID     string    `json:"runId"`
	Operation Operation `json:"operation"`
	State     State     `json:"state"`
	Store     string    `json:"store"`
	StartedAt time.Time `json:"startedAt"`

	Plan        *Plan                 `json:"plan"`
	Backup      *storage.BackupResult `json:"backup,omitempty"`
	RowsUpdated int64                 `json:"rowsUpdated"`
	Failures    []PairFailure         `json:"failures,omitempty"`
	Verify      *Verification         `json:"verify,omitempty"`
}

// Run reports the plan and, when apply is set, backs the store up and
// applies every pair. A backup failure is returned as a BACKUP_FAILURE error
// and leaves the store untouched. Failed pairs are recorded in the report and
// do not stop the remaining pairs.
func (u *Updater) Run(ctx context.Context, plan *Plan, apply bool) (*Report, error) {
	rep := &Report{
		RunID:     plan.RunID,
		Operation: plan.Operation,
		State:     StatePlanned,
		Store:     u.db.Path(),
		StartedAt: u.now(),
		Plan:      plan,
	}

	if !apply {
		rep.State = StateReportedDryRun
		u.logger.Info("Dry run, no changes made", "run_id", plan.RunID, "rows_pending", plan.RowsPending())
		return rep, nil
	}

	if u.backup == nil {
		rep.State = StateBackupFailed
		return rep, errors.Newf(errors.BackupFailure, "no backup configured; refusing to apply")
	}
	backup, err := u.backup.Backup(ctx)
	if err != nil {
		rep.State = StateBackupFailed
		u.logger.Error("Backup failed, nothing applied", "run_id", plan.RunID, "error", err.Error())
		if !errors.HasCode(err, errors.BackupFailure) {
			err = errors.New(errors.BackupFailure, "backup failed", err)
		}
		return rep, err
	}
	rep.Backup = backup
	metrics.BackupDuration.Observe(backup.Duration.Seconds())

	if plan.Operation == OpBackfill && plan.ColumnMissing {
		if err := u.db.AddColumn(ctx, u.table, u.opts.TargetColumn, "TEXT"); err != nil {
			return rep, errors.New(errors.ApplyFailure, "failed to add backfill column", err)
		}
	}

	for _, pair := range plan.Pairs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		n, err := u.applyPair(ctx, plan, pair)
		if err != nil {
			u.logger.Error("Pair update failed",
				"run_id", plan.RunID,
				"slug", pair.Slug,
				"suffix", pair.Suffix,
				"key", pair.Key,
				"code", errors.ApplyFailure,
				"error", err.Error(),
			)
			rep.Failures = append(rep.Failures, PairFailure{Pair: pair, Code: errors.ApplyFailure, Error: err.Error()})
			continue
		}
		rep.RowsUpdated += n
	}
	metrics.ReconcileRowsUpdated.WithLabelValues(string(plan.Operation)).Add(float64(rep.RowsUpdated))
	metrics.ReconcileExcluded.WithLabelValues(string(plan.Operation), "apply_failure").Add(float64(len(rep.Failures)))

	verify, err := u.verify(ctx, plan)
	if err != nil {
		u.logger.Warn("Verification query failed", "run_id", plan.RunID, "error", err.Error())
	}
	rep.Verify = verify
	rep.State = StateApplied

	u.logger.Info("Applied",
		"run_id", plan.RunID,
		"operation", string(plan.Operation),
		"rows_updated", rep.RowsUpdated,
		"failures", len(rep.Failures),
		"backup", backup.Path,
	)
	return rep, nil
}

// applyPair runs the single statement for one pair, so each pair commits or
// fails as a unit.
func (u *Updater) applyPair(ctx context.Context, plan *Plan, p Pair) (int64, error) {
	id, key, target := u.opts.IdentityColumn, u.opts.KeyColumn, u.opts.TargetColumn

	var (
		q    string
		args []interface{}
	)
	switch plan.Operation {
	case OpBackfill:
		q = "UPDATE " + u.table + " SET " + target + " = ? WHERE " + key + " = ? AND " + u.backfillPending()
		args = []interface{}{p.Value, p.Key}
		if p.Display != "" {
			q += " AND " + id + " IN (?, ?)"
			args = append(args, p.Slug, p.Display)
		} else {
			q += " AND " + id + " = ?"
			args = append(args, p.Slug)
		}
	case OpRename:
		q = "UPDATE " + u.table + " SET " + id + " = ? WHERE " + id + " = ? AND " + key + " = ? AND " + id + " <> ?"
		args = []interface{}{p.Value, p.Slug, p.Key, p.Value}
	case OpSuffixRename:
		i := ruleIndex(plan.Rules, p.Suffix)
		if i < 0 {
			return 0, fmt.Errorf("no rule for suffix %q", p.Suffix)
		}
		where, wargs := u.suffixWhere(plan.Rules, i)
		q = "UPDATE " + u.table + " SET " + id + " = ? WHERE " + where
		args = append([]interface{}{p.Value}, wargs...)
	default:
		return 0, fmt.Errorf("unknown operation %q", plan.Operation)
	}

	res, err := u.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ruleIndex returns the position of the first rule for suffix, or -1
func ruleIndex(rules []naming.SuffixRename, suffix string) int {
	for i, r := range rules {
		if r.Suffix == suffix {
			return i
		}
	}
	return -1
}
