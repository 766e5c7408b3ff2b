package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// verifyPreview truncates sampled values
const verifyPreview = 200

// IdentityCount is the post-apply state of one identity
type IdentityCount struct {
	Identity  string `json:"identity"`
	Rows      int64  `json:"rows"`
	WithValue int64  `json:"withValue"`
}

// SampleRow is one row read back after apply
type SampleRow struct {
	Identity string `json:"identity"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

// Verification is read back from the store after apply
type Verification struct {
	Identities []IdentityCount `json:"identities"`
	Sample     []SampleRow     `json:"sample"`
}

// verify re-reads the identities the plan touched
func (u *Updater) verify(ctx context.Context, plan *Plan) (*Verification, error) {
	ids := affectedIdentities(plan)
	v := &Verification{Identities: []IdentityCount{}, Sample: []SampleRow{}}
	if len(ids) == 0 {
		return v, nil
	}

	id, key, target := u.opts.IdentityColumn, u.opts.KeyColumn, plan.Column
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, len(ids))
	for i, s := range ids {
		args[i] = s
	}
	nonEmpty := "(" + target + " IS NOT NULL AND " + target + " <> '')"

	rows, err := u.db.QueryContext(ctx,
		"SELECT "+id+", COUNT(*), COALESCE(SUM(CASE WHEN "+nonEmpty+" THEN 1 ELSE 0 END), 0)"+
			" FROM "+u.table+" WHERE "+id+" IN ("+placeholders+")"+
			" GROUP BY "+id+" ORDER BY "+id,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("verification count failed: %w", err)
	}
	for rows.Next() {
		var c IdentityCount
		if err := rows.Scan(&c.Identity, &c.Rows, &c.WithValue); err != nil {
			rows.Close()
			return nil, err
		}
		v.Identities = append(v.Identities, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	keyExpr := "''"
	if plan.Operation != OpSuffixRename {
		keyExpr = "COALESCE(" + key + ", '')"
	}
	sample, err := u.db.QueryContext(ctx,
		"SELECT "+id+", "+keyExpr+", substr("+target+", 1, ?) FROM "+u.table+
			" WHERE "+id+" IN ("+placeholders+") AND "+nonEmpty+
			" ORDER BY rowid LIMIT ?",
		append(append([]interface{}{verifyPreview}, args...), u.opts.VerifySample)...,
	)
	if err != nil {
		return nil, fmt.Errorf("verification sample failed: %w", err)
	}
	defer sample.Close()
	for sample.Next() {
		var r SampleRow
		if err := sample.Scan(&r.Identity, &r.Key, &r.Value); err != nil {
			return nil, err
		}
		v.Sample = append(v.Sample, r)
	}
	return v, sample.Err()
}

// affectedIdentities lists every identity value a plan reads or writes
func affectedIdentities(plan *Plan) []string {
	set := make(map[string]bool)
	for _, p := range plan.Pairs {
		for _, s := range []string{p.Slug, p.Display} {
			if s != "" {
				set[s] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
