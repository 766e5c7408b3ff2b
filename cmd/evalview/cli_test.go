package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"evalview/internal/errors"
)

const testCSV = `prompt_id,model_name,category,prompt,model_response,score,explanation
p1,vendor_model-a,grammar,Olá,Resposta um,4,ok
p2,vendor_model-a,grammar,Bom dia,Resposta dois,2,meh
p1,other-model,style,Olá,Outra,5,good
`

const testArtifact = `[
  {"model_name": "Vendor Model A", "prompt_id": "p1", "raw_output": "saída completa"},
  {"model_name": "Vendor Model A", "prompt_id": "p7", "raw_output": "sem linha"}
]`

// resetFlags restores every flag to its default. Flag values live in package
// variables and survive between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

type cliEnv struct {
	db    string
	evals string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		db:    filepath.Join(dir, "evaluations.db"),
		evals: filepath.Join(dir, "pt-pt-eval"),
	}

	csvPath := filepath.Join(dir, "results.csv")
	if err := os.WriteFile(csvPath, []byte(testCSV), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(env.evals, 0755); err != nil {
		t.Fatal(err)
	}
	name := "2025-01-01T00-00-00+0000_vendor_model-a_pt-pt.json"
	if err := os.WriteFile(filepath.Join(env.evals, name), []byte(testArtifact), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "import", csvPath, "--db", env.db, "--format", "json", "-q")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, `"rows": 3`) {
		t.Fatalf("unexpected import output: %s", out)
	}
	return env
}

func decode(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var v map[string]interface{}
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	return v
}

func rawOutputRows(t *testing.T, env *cliEnv) float64 {
	t.Helper()
	out, err := runCLI(t, "query", "--db", env.db, "--format", "json", "-q", "--has-raw-output", "true")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	n, _ := decode(t, out)["totalCount"].(float64)
	return n
}

func TestCLI_Query(t *testing.T) {
	env := newCLIEnv(t)

	out, err := runCLI(t, "query", "--db", env.db, "--format", "json", "-q", "--model", "vendor_model-a")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	res := decode(t, out)
	if res["totalCount"] != float64(2) {
		t.Errorf("totalCount = %v, want 2", res["totalCount"])
	}
	stats := res["stats"].(map[string]interface{})
	if stats["avg"] != float64(3) || stats["median"] != float64(2) {
		t.Errorf("unexpected stats: %v", stats)
	}

	out, err = runCLI(t, "query", "--db", env.db, "-q", "--view", "conversations")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if !strings.Contains(out, "Evaluations (conversations view)") {
		t.Errorf("unexpected human output:\n%s", out)
	}
}

func TestCLI_QueryErrors(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
		code errors.ErrorCode
	}{
		{"bad score", []string{"--min-score", "abc"}, errors.InvalidFilter},
		{"bad page", []string{"--page", "0"}, errors.InvalidPage},
		{"bad view", []string{"--view", "nope"}, errors.InvalidFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"query", "--db", env.db, "-q"}, tt.args...)
			_, err := runCLI(t, args...)
			if !errors.HasCode(err, tt.code) {
				t.Errorf("err = %v, want code %s", err, tt.code)
			}
		})
	}

	_, err := runCLI(t, "query", "--db", filepath.Join(t.TempDir(), "missing.db"), "-q")
	if err == nil {
		t.Error("expected error for a store without the table")
	}
}

func TestCLI_BackfillDryRunThenApply(t *testing.T) {
	env := newCLIEnv(t)

	out, err := runCLI(t, "reconcile", "backfill", "--db", env.db, "--evals-dir", env.evals, "--format", "json", "-q")
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	rep := decode(t, out)
	if rep["state"] != "reported-dry-run" {
		t.Errorf("state = %v, want reported-dry-run", rep["state"])
	}
	plan := rep["plan"].(map[string]interface{})
	if n := len(plan["pairs"].([]interface{})); n != 1 {
		t.Errorf("pairs = %d, want 1", n)
	}
	if n := len(plan["unmatched"].([]interface{})); n != 1 {
		t.Errorf("unmatched = %d, want 1", n)
	}
	if got := rawOutputRows(t, env); got != 0 {
		t.Errorf("dry run wrote %v rows", got)
	}

	out, err = runCLI(t, "reconcile", "backfill", "--db", env.db, "--evals-dir", env.evals, "--apply", "--format", "json", "-q")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	rep = decode(t, out)
	if rep["state"] != "applied" || rep["rowsUpdated"] != float64(1) {
		t.Errorf("unexpected report: state=%v rowsUpdated=%v", rep["state"], rep["rowsUpdated"])
	}
	backup := rep["backup"].(map[string]interface{})
	if _, err := os.Stat(backup["path"].(string)); err != nil {
		t.Errorf("backup missing: %v", err)
	}

	if got := rawOutputRows(t, env); got != 1 {
		t.Errorf("rows with raw output = %v, want 1", got)
	}

	out, err = runCLI(t, "reconcile", "backfill", "--db", env.db, "--evals-dir", env.evals, "--apply", "--format", "json", "-q")
	if err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if rep := decode(t, out); rep["rowsUpdated"] != float64(0) {
		t.Errorf("second apply updated %v rows, want 0", rep["rowsUpdated"])
	}
}

func TestCLI_Rename(t *testing.T) {
	env := newCLIEnv(t)

	out, err := runCLI(t, "reconcile", "rename", "--db", env.db, "--evals-dir", env.evals, "--apply", "-q")
	if err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if !strings.Contains(out, "Rows updated: 1") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = runCLI(t, "inspect", "--db", env.db, "--distinct", "model_name", "--format", "json", "-q")
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	for _, want := range []string{`"Vendor Model A"`, `"vendor_model-a"`, `"other-model"`} {
		if !strings.Contains(out, want) {
			t.Errorf("distinct output missing %s:\n%s", want, out)
		}
	}
}

func TestCLI_RenameSuffix(t *testing.T) {
	env := newCLIEnv(t)
	names := filepath.Join(t.TempDir(), "names.yaml")
	content := "renames:\n  - suffix: \"-model\"\n    display: Other Model\n"
	if err := os.WriteFile(names, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "rename-suffix", "--db", env.db, "--names", names, "--apply", "--format", "json", "-q")
	if err != nil {
		t.Fatalf("rename-suffix failed: %v", err)
	}
	if rep := decode(t, out); rep["rowsUpdated"] != float64(1) {
		t.Errorf("rowsUpdated = %v, want 1", rep["rowsUpdated"])
	}

	_, err = runCLI(t, "rename-suffix", "--db", env.db, "-q")
	if !errors.HasCode(err, errors.InvalidConfig) {
		t.Errorf("err = %v, want INVALID_CONFIG without rules", err)
	}
}

func TestCLI_MissingArtifactsDir(t *testing.T) {
	env := newCLIEnv(t)

	_, err := runCLI(t, "reconcile", "backfill", "--db", env.db, "--evals-dir", filepath.Join(t.TempDir(), "nope"), "-q")
	if !errors.HasCode(err, errors.ArtifactsNotFound) {
		t.Errorf("err = %v, want ARTIFACTS_NOT_FOUND", err)
	}
}

func TestCLI_Token(t *testing.T) {
	out, err := runCLI(t, "token", "--format", "json", "-q")
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	res := decode(t, out)
	if !strings.HasPrefix(res["token"].(string), "ev_sk_") {
		t.Errorf("unexpected token: %v", res["token"])
	}
	if !strings.HasPrefix(res["hash"].(string), "$2a$") {
		t.Errorf("unexpected hash: %v", res["hash"])
	}
}

func TestCLI_UnsupportedFormat(t *testing.T) {
	_, err := runCLI(t, "version", "--format", "xml")
	if !errors.HasCode(err, errors.InvalidConfig) {
		t.Errorf("err = %v, want INVALID_CONFIG", err)
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, errors.Newf(errors.StoreNotFound, "no store"))

	out := buf.String()
	if !strings.HasPrefix(out, "Error: [STORE_NOT_FOUND] no store") {
		t.Errorf("unexpected output: %s", out)
	}
	if !strings.Contains(out, "try: evalview inspect --db <path>") {
		t.Errorf("missing suggested fix: %s", out)
	}
}
