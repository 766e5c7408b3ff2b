package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"evalview/internal/artifacts"
	"evalview/internal/reconcile"
	"evalview/internal/storage"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// unmatchedListLimit is the most unmatched pairs listed one by one
const unmatchedListLimit = 20

// previewLength bounds payload previews in human output
const previewLength = 200

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// formatJSON formats the response as JSON
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// formatHuman formats the response in human-readable format
func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *QueryResponseCLI:
		return formatQueryHuman(v)
	case *reconcile.Report:
		return formatReportHuman(v)
	case *InspectResponseCLI:
		return formatInspectHuman(v)
	case *DistinctResponseCLI:
		return formatDistinctHuman(v)
	case *ImportResponseCLI:
		return fmt.Sprintf("Imported %d rows from %s into %s (table %s)", v.Rows, v.Source, v.Store, v.Table), nil
	case *TokenResponseCLI:
		return formatTokenHuman(v)
	default:
		return formatJSON(resp)
	}
}

func header(b *strings.Builder, title string) {
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
}

func formatQueryHuman(resp *QueryResponseCLI) (string, error) {
	var b strings.Builder

	header(&b, fmt.Sprintf("Evaluations (%s view)", resp.View))

	if f := describeFilter(resp); f != "" {
		b.WriteString(fmt.Sprintf("Filter: %s\n", f))
	}
	s := resp.Stats
	b.WriteString(fmt.Sprintf("Matching: %d rows, %d scored\n", s.Total, s.Scored))
	if s.Scored > 0 {
		b.WriteString(fmt.Sprintf("Score: avg %.2f  min %.2f  max %.2f  median %.2f\n", s.Avg, s.Min, s.Max, s.Median))
	}
	b.WriteString(fmt.Sprintf("Page %d of %d (%d per page)\n\n", resp.Page, resp.TotalPages, resp.PageSize))

	if len(resp.Rows) == 0 {
		b.WriteString("No evaluations on this page.\n")
		return b.String(), nil
	}

	for _, r := range resp.Rows {
		name := r.ModelName
		if resp.Names != nil {
			name = resp.Names.DisplayName(r.ModelName)
		}
		b.WriteString(fmt.Sprintf("#%d %s", r.ID, name))
		if r.ConversationID != nil {
			b.WriteString(fmt.Sprintf("  conv %s", *r.ConversationID))
		}
		if r.TurnNumber != nil {
			b.WriteString(fmt.Sprintf(" turn %d", *r.TurnNumber))
		}
		if r.Category != nil {
			b.WriteString(fmt.Sprintf("  [%s]", *r.Category))
		}
		if r.Score != nil {
			b.WriteString(fmt.Sprintf("  score %.2f", *r.Score))
		}
		b.WriteString("\n")
		if r.Prompt != nil {
			b.WriteString(fmt.Sprintf("  prompt:   %s\n", preview(*r.Prompt)))
		}
		if r.Response != nil {
			b.WriteString(fmt.Sprintf("  response: %s\n", preview(*r.Response)))
		}
		if r.RawOutput != nil && *r.RawOutput != "" {
			b.WriteString(fmt.Sprintf("  raw:      %s\n", preview(*r.RawOutput)))
		}
	}

	return b.String(), nil
}

func describeFilter(resp *QueryResponseCLI) string {
	f := resp.Filter
	var parts []string
	if f.Model != nil {
		parts = append(parts, "model="+*f.Model)
	}
	if f.Category != nil {
		parts = append(parts, "category="+*f.Category)
	}
	if f.ConversationID != nil {
		parts = append(parts, "conversation="+*f.ConversationID)
	}
	if f.HasRawOutput != nil {
		parts = append(parts, fmt.Sprintf("has_raw_output=%v", *f.HasRawOutput))
	}
	if f.MinScore != nil {
		parts = append(parts, fmt.Sprintf("score>=%g", *f.MinScore))
	}
	if f.MaxScore != nil {
		parts = append(parts, fmt.Sprintf("score<=%g", *f.MaxScore))
	}
	return strings.Join(parts, " ")
}

func formatReportHuman(rep *reconcile.Report) (string, error) {
	var b strings.Builder
	plan := rep.Plan

	header(&b, fmt.Sprintf("Reconcile %s: %s", rep.Operation, rep.State))
	b.WriteString(fmt.Sprintf("Run:    %s\n", rep.RunID))
	b.WriteString(fmt.Sprintf("Store:  %s\n", rep.Store))
	b.WriteString(fmt.Sprintf("Target: %s.%s\n", plan.Table, plan.Column))
	if plan.ColumnMissing {
		b.WriteString(fmt.Sprintf("        column %s does not exist yet and will be added\n", plan.Column))
	}
	b.WriteString("\n")

	if len(plan.Rules) > 0 {
		b.WriteString("Rules (first match wins):\n")
		for _, r := range plan.Rules {
			b.WriteString(fmt.Sprintf("  *%s → %s\n", r.Suffix, r.Display))
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("Matched pairs (%d, %d rows, %d pending):\n", len(plan.Pairs), plan.RowsMatched(), plan.RowsPending()))
	for _, p := range plan.Pairs {
		b.WriteString(fmt.Sprintf("  %s  %d rows, %d pending\n", pairLabel(p), p.Rows(), p.Pending))
		if plan.Operation == reconcile.OpBackfill && p.Value != "" {
			b.WriteString(fmt.Sprintf("    %s\n", preview(p.Value)))
		}
	}
	if len(plan.Pairs) == 0 {
		b.WriteString("  (none)\n")
	}

	if len(plan.Unmatched) > 0 {
		b.WriteString(fmt.Sprintf("\nUnmatched pairs (%d, no rows in store):\n", len(plan.Unmatched)))
		if len(plan.Unmatched) <= unmatchedListLimit {
			for _, p := range plan.Unmatched {
				b.WriteString(fmt.Sprintf("  %s\n", pairLabel(p)))
			}
		}
	}

	if len(plan.Ambiguous) > 0 {
		b.WriteString(fmt.Sprintf("\nAmbiguous slugs (%d, excluded):\n", len(plan.Ambiguous)))
		for _, a := range plan.Ambiguous {
			b.WriteString(fmt.Sprintf("  %s: %s\n", a.Slug, formatIdentities(a.Identities)))
		}
	}
	if len(plan.Unresolved) > 0 {
		b.WriteString(fmt.Sprintf("\nSlugs without a display name (%d): %s\n", len(plan.Unresolved), strings.Join(plan.Unresolved, ", ")))
	}
	writeDiagnostics(&b, "Malformed artifacts", plan.Malformed)
	writeDiagnostics(&b, "Skipped files", plan.Skipped)
	if plan.Keyless > 0 {
		b.WriteString(fmt.Sprintf("\nRecords without a key: %d\n", plan.Keyless))
	}
	if plan.NonObject > 0 {
		b.WriteString(fmt.Sprintf("\nArray elements that are not records: %d\n", plan.NonObject))
	}
	if len(plan.NoPayload) > 0 {
		b.WriteString(fmt.Sprintf("\nKeys without a payload (%d, skipped):\n", len(plan.NoPayload)))
		if len(plan.NoPayload) <= unmatchedListLimit {
			for _, p := range plan.NoPayload {
				b.WriteString(fmt.Sprintf("  %s\n", pairLabel(p)))
			}
		}
	}

	if rep.Backup != nil {
		b.WriteString(fmt.Sprintf("\nBackup: %s (%s, sha256 %s)\n", rep.Backup.Path, formatBytes(rep.Backup.SourceSize), shortHash(rep.Backup.SHA256)))
	}

	switch rep.State {
	case reconcile.StateReportedDryRun:
		b.WriteString("\nDry run: no changes were made. Rerun with --apply to write them.\n")
	case reconcile.StateBackupFailed:
		b.WriteString("\nBackup failed: no changes were made.\n")
	case reconcile.StateApplied:
		b.WriteString(fmt.Sprintf("\nRows updated: %d\n", rep.RowsUpdated))
	}

	if len(rep.Failures) > 0 {
		b.WriteString(fmt.Sprintf("\nFailed pairs (%d):\n", len(rep.Failures)))
		for _, f := range rep.Failures {
			b.WriteString(fmt.Sprintf("  %s  [%s] %s\n", pairLabel(f.Pair), f.Code, f.Error))
		}
	}

	if v := rep.Verify; v != nil {
		b.WriteString("\nVerification:\n")
		for _, id := range v.Identities {
			b.WriteString(fmt.Sprintf("  %-40s %d rows, %d with %s\n", id.Identity, id.Rows, id.WithValue, plan.Column))
		}
		for _, s := range v.Sample {
			b.WriteString(fmt.Sprintf("  %s/%s: %s\n", s.Identity, s.Key, preview(s.Value)))
		}
	}

	return b.String(), nil
}

func pairLabel(p reconcile.Pair) string {
	switch {
	case p.Suffix != "":
		return fmt.Sprintf("*%s → %s", p.Suffix, p.Display)
	case p.Display != "" && p.Slug != "":
		return fmt.Sprintf("%s → %s (%s)", p.Slug, p.Display, p.Key)
	default:
		return fmt.Sprintf("%s/%s", p.Slug, p.Key)
	}
}

func formatIdentities(ids map[string]int) string {
	names := make([]string, 0, len(ids))
	for name := range ids {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%q×%d", name, ids[name])
	}
	return strings.Join(parts, ", ")
}

func writeDiagnostics(b *strings.Builder, title string, diags []artifacts.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("\n%s (%d):\n", title, len(diags)))
	for _, d := range diags {
		b.WriteString(fmt.Sprintf("  %s: %s", d.File, d.Reason))
		if d.Detail != "" {
			b.WriteString(" (" + d.Detail + ")")
		}
		b.WriteString("\n")
	}
}

func formatInspectHuman(resp *InspectResponseCLI) (string, error) {
	var b strings.Builder

	header(&b, fmt.Sprintf("Store: %s", resp.Store))
	if len(resp.Tables) == 0 {
		b.WriteString("No tables.\n")
		return b.String(), nil
	}

	for _, t := range resp.Tables {
		b.WriteString(fmt.Sprintf("%s (%d rows)\n", t.Name, t.Rows))
		for _, c := range t.Columns {
			b.WriteString(fmt.Sprintf("  %-20s %s%s\n", c.Name, c.Type, columnFlags(c)))
		}
		for i, row := range t.Sample {
			b.WriteString(fmt.Sprintf("  sample %d:\n", i+1))
			for _, c := range t.Columns {
				b.WriteString(fmt.Sprintf("    %s = %s\n", c.Name, row[c.Name]))
			}
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func columnFlags(c storage.ColumnInfo) string {
	var flags []string
	if c.PrimaryKey {
		flags = append(flags, "primary key")
	}
	if c.NotNull {
		flags = append(flags, "not null")
	}
	if len(flags) == 0 {
		return ""
	}
	return " (" + strings.Join(flags, ", ") + ")"
}

func formatDistinctHuman(resp *DistinctResponseCLI) (string, error) {
	var b strings.Builder

	header(&b, fmt.Sprintf("%s.%s", resp.Table, resp.Column))
	for _, v := range resp.Values {
		b.WriteString(fmt.Sprintf("  %8d  %s\n", v.Count, v.Value))
	}
	if len(resp.Values) == 0 {
		b.WriteString("  (no values)\n")
	}
	return b.String(), nil
}

func formatTokenHuman(resp *TokenResponseCLI) (string, error) {
	var b strings.Builder

	header(&b, "API token")
	b.WriteString(fmt.Sprintf("Token: %s\n", resp.Token))
	b.WriteString(fmt.Sprintf("Hash:  %s\n\n", resp.Hash))
	b.WriteString("Set server.authTokenHash to the hash and send the token as\n")
	b.WriteString("\"Authorization: Bearer <token>\". The token is not shown again.\n")
	return b.String(), nil
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= previewLength {
		return s
	}
	return string([]rune(s)[:previewLength]) + "…"
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
