package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"evalview/internal/artifacts"
	"evalview/internal/errors"
	"evalview/internal/metrics"
	"evalview/internal/naming"
)

// Pair is one planned update. For OpBackfill and OpRename it is a (slug, key)
// pair; for OpSuffixRename Key is empty and Suffix is set.
type Pair struct {
	Slug    string `json:"slug,omitempty"`
	Display string `json:"display,omitempty"`
	Key     string `json:"key,omitempty"`
	Suffix  string `json:"suffix,omitempty"`
	// Value is written to the target column
	Value string `json:"value"`
	// SlugRows and DisplayRows count rows matching each identity and the key
	SlugRows    int64 `json:"slugRows"`
	DisplayRows int64 `json:"displayRows"`
	// Pending counts matched rows the apply step would still change
	Pending int64 `json:"pending"`
}

// Rows returns every row the pair matches
func (p Pair) Rows() int64 {
	return p.SlugRows + p.DisplayRows
}

// AmbiguousSlug is a slug excluded because its records disagree on identity
type AmbiguousSlug struct {
	Slug       string         `json:"slug"`
	Identities map[string]int `json:"identities"`
}

// Plan is the full set of matched and excluded work for one run
type Plan struct {
	RunID     string    `json:"runId"`
	Operation Operation `json:"operation"`
	Table     string    `json:"table"`
	Column    string    `json:"column"`
	// ColumnMissing is set when a backfill column must be added on apply
	ColumnMissing bool `json:"columnMissing,omitempty"`

	Pairs      []Pair                 `json:"pairs"`
	Unmatched  []Pair                 `json:"unmatched"`
	Ambiguous  []AmbiguousSlug        `json:"ambiguous"`
	Unresolved []string               `json:"unresolved,omitempty"`
	Malformed  []artifacts.Diagnostic `json:"malformed,omitempty"`
	Skipped    []artifacts.Diagnostic `json:"skipped,omitempty"`
	Keyless    int                    `json:"keyless,omitempty"`
	NonObject  int                    `json:"nonObject,omitempty"`
	// NoPayload lists backfill keys whose records carry no payload
	NoPayload []Pair `json:"noPayload,omitempty"`
	// Rules are the suffix renames in evaluation order
	Rules []naming.SuffixRename `json:"rules,omitempty"`
}

// RowsMatched sums matched rows over all planned pairs
func (p *Plan) RowsMatched() int64 {
	var n int64
	for _, pair := range p.Pairs {
		n += pair.Rows()
	}
	return n
}

// RowsPending sums rows the apply step would change
func (p *Plan) RowsPending() int64 {
	var n int64
	for _, pair := range p.Pairs {
		n += pair.Pending
	}
	return n
}

func (u *Updater) newPlan(op Operation, column string, scan *artifacts.Result) *Plan {
	p := &Plan{
		RunID:     uuid.NewString(),
		Operation: op,
		Table:     u.table,
		Column:    column,
		Pairs:     []Pair{},
		Unmatched: []Pair{},
		Ambiguous: []AmbiguousSlug{},
	}
	if scan != nil {
		for _, d := range scan.Diagnostics {
			if d.Code == errors.MalformedArtifact {
				p.Malformed = append(p.Malformed, d)
			} else {
				p.Skipped = append(p.Skipped, d)
			}
		}
	}
	return p
}

// PlanBackfill plans filling the target column from artifact payloads
func (u *Updater) PlanBackfill(ctx context.Context, scan *artifacts.Result, m *Mapping) (*Plan, error) {
	if err := u.requireColumns(ctx, u.opts.IdentityColumn, u.opts.KeyColumn); err != nil {
		return nil, err
	}
	hasTarget, err := u.db.ColumnExists(ctx, u.table, u.opts.TargetColumn)
	if err != nil {
		return nil, err
	}

	plan := u.newPlan(OpBackfill, u.opts.TargetColumn, scan)
	plan.ColumnMissing = !hasTarget

	for _, slug := range m.Slugs {
		plan.Keyless += m.Keyless[slug]
		plan.NonObject += m.NonObject[slug]
		if ids, ok := m.Ambiguous[slug]; ok {
			plan.Ambiguous = append(plan.Ambiguous, AmbiguousSlug{Slug: slug, Identities: ids})
			continue
		}
		display := m.Display[slug]
		if display == slug {
			display = ""
		}
		for _, key := range m.Keys[slug] {
			payload, ok := m.Payloads[slug][key]
			if !ok {
				plan.NoPayload = append(plan.NoPayload, Pair{Slug: slug, Display: display, Key: key})
				continue
			}
			pair := Pair{Slug: slug, Display: display, Key: key, Value: payload}
			if err := u.countPair(ctx, &pair, !hasTarget, u.backfillPending()); err != nil {
				return nil, err
			}
			u.place(plan, pair)
		}
	}

	u.logPlan(plan)
	return plan, nil
}

// PlanRename plans rewriting slug identities to their display identity
func (u *Updater) PlanRename(ctx context.Context, scan *artifacts.Result, m *Mapping) (*Plan, error) {
	if err := u.requireColumns(ctx, u.opts.IdentityColumn, u.opts.KeyColumn); err != nil {
		return nil, err
	}

	plan := u.newPlan(OpRename, u.opts.IdentityColumn, scan)

	for _, slug := range m.Slugs {
		plan.Keyless += m.Keyless[slug]
		plan.NonObject += m.NonObject[slug]
		if ids, ok := m.Ambiguous[slug]; ok {
			plan.Ambiguous = append(plan.Ambiguous, AmbiguousSlug{Slug: slug, Identities: ids})
			continue
		}
		display, ok := m.Display[slug]
		if !ok {
			plan.Unresolved = append(plan.Unresolved, slug)
			continue
		}
		if display == slug {
			continue
		}
		for _, key := range m.Keys[slug] {
			pair := Pair{Slug: slug, Display: display, Key: key, Value: display}
			// Rows still under the slug are exactly the ones a rename changes.
			if err := u.countPair(ctx, &pair, false, ""); err != nil {
				return nil, err
			}
			pair.Pending = pair.SlugRows
			u.place(plan, pair)
		}
	}

	u.logPlan(plan)
	return plan, nil
}

// PlanSuffixRename plans renaming identities by suffix. Rules are applied in
// order and a row is claimed by the first rule whose suffix it ends with. A
// row already carrying any rule's display name is never claimed, so a second
// run changes nothing.
func (u *Updater) PlanSuffixRename(ctx context.Context, rules []naming.SuffixRename) (*Plan, error) {
	if err := u.requireColumns(ctx, u.opts.IdentityColumn); err != nil {
		return nil, err
	}

	plan := u.newPlan(OpSuffixRename, u.opts.IdentityColumn, nil)
	plan.Rules = rules

	for i, r := range rules {
		where, args := u.suffixWhere(rules, i)
		var rows int64
		if err := u.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+u.table+" WHERE "+where, args...,
		).Scan(&rows); err != nil {
			return nil, fmt.Errorf("failed to count suffix %q: %w", r.Suffix, err)
		}

		pair := Pair{Suffix: r.Suffix, Display: r.Display, Value: r.Display, SlugRows: rows, Pending: rows}
		u.place(plan, pair)
	}

	u.logPlan(plan)
	return plan, nil
}

// suffixWhere matches identities ending in rules[i].Suffix that no earlier
// rule claims and that are not already one of the display names.
func (u *Updater) suffixWhere(rules []naming.SuffixRename, i int) (string, []interface{}) {
	id := u.opts.IdentityColumn
	endsWith := "substr(" + id + ", -length(?)) = ?"

	clauses := []string{endsWith}
	args := []interface{}{rules[i].Suffix, rules[i].Suffix}
	for _, e := range rules[:i] {
		clauses = append(clauses, "NOT ("+endsWith+")")
		args = append(args, e.Suffix, e.Suffix)
	}

	marks := make([]string, len(rules))
	for j, r := range rules {
		marks[j] = "?"
		args = append(args, r.Display)
	}
	clauses = append(clauses, id+" NOT IN ("+strings.Join(marks, ", ")+")")
	return strings.Join(clauses, " AND "), args
}

// backfillPending is the SQL condition for rows a backfill still changes
func (u *Updater) backfillPending() string {
	t := u.opts.TargetColumn
	return "(" + t + " IS NULL OR " + t + " = '')"
}

// countPair fills SlugRows, DisplayRows and, when pendingCond is set, Pending.
// With allPending every matched row counts as pending.
func (u *Updater) countPair(ctx context.Context, p *Pair, allPending bool, pendingCond string) error {
	id, key := u.opts.IdentityColumn, u.opts.KeyColumn

	count := func(identity string) (int64, int64, error) {
		pendingExpr := "0"
		if pendingCond != "" && !allPending {
			pendingExpr = "COALESCE(SUM(CASE WHEN " + pendingCond + " THEN 1 ELSE 0 END), 0)"
		}
		var rows, pending int64
		err := u.db.QueryRowContext(ctx,
			"SELECT COUNT(*), "+pendingExpr+" FROM "+u.table+" WHERE "+id+" = ? AND "+key+" = ?",
			identity, p.Key,
		).Scan(&rows, &pending)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to count %s/%s: %w", identity, p.Key, err)
		}
		if allPending {
			pending = rows
		}
		return rows, pending, nil
	}

	rows, pending, err := count(p.Slug)
	if err != nil {
		return err
	}
	p.SlugRows, p.Pending = rows, pending

	if p.Display != "" && p.Display != p.Slug {
		rows, pending, err := count(p.Display)
		if err != nil {
			return err
		}
		p.DisplayRows = rows
		p.Pending += pending
	}
	return nil
}

// place files the pair as matched or unmatched
func (u *Updater) place(plan *Plan, pair Pair) {
	if pair.Rows() == 0 {
		plan.Unmatched = append(plan.Unmatched, pair)
		return
	}
	plan.Pairs = append(plan.Pairs, pair)
}

func (u *Updater) logPlan(plan *Plan) {
	sort.Slice(plan.Ambiguous, func(i, j int) bool { return plan.Ambiguous[i].Slug < plan.Ambiguous[j].Slug })

	op := string(plan.Operation)
	metrics.ReconcileExcluded.WithLabelValues(op, "ambiguous").Add(float64(len(plan.Ambiguous)))
	metrics.ReconcileExcluded.WithLabelValues(op, "unmatched").Add(float64(len(plan.Unmatched)))
	metrics.ReconcileExcluded.WithLabelValues(op, "malformed").Add(float64(len(plan.Malformed)))
	metrics.ReconcileExcluded.WithLabelValues(op, "no_payload").Add(float64(len(plan.NoPayload)))

	for _, a := range plan.Ambiguous {
		u.logger.Warn("Excluding ambiguous slug",
			"run_id", plan.RunID,
			"slug", a.Slug,
			"code", errors.AmbiguousIdentity,
			"identities", len(a.Identities),
		)
	}
	for _, p := range plan.Unmatched {
		u.logger.Warn("Excluding unmatched pair",
			"run_id", plan.RunID,
			"slug", p.Slug,
			"suffix", p.Suffix,
			"key", p.Key,
			"code", errors.UnmatchedPair,
		)
	}
	for _, p := range plan.NoPayload {
		u.logger.Warn("Skipping key without payload", "run_id", plan.RunID, "slug", p.Slug, "key", p.Key)
	}
	for _, slug := range plan.Unresolved {
		u.logger.Warn("Slug has no identity in its artifacts", "run_id", plan.RunID, "slug", slug)
	}

	u.logger.Info("Plan built",
		"run_id", plan.RunID,
		"operation", op,
		"pairs", len(plan.Pairs),
		"rows_matched", plan.RowsMatched(),
		"rows_pending", plan.RowsPending(),
		"unmatched", len(plan.Unmatched),
		"ambiguous", len(plan.Ambiguous),
		"malformed", len(plan.Malformed),
		"no_payload", len(plan.NoPayload),
		"keyless", plan.Keyless,
		"non_object", plan.NonObject,
	)
}
