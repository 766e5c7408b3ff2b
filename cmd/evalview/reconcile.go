package main

import (
	"context"

	"github.com/spf13/cobra"

	"evalview/internal/artifacts"
	"evalview/internal/errors"
	"evalview/internal/reconcile"
	"evalview/internal/storage"
)

var (
	reconcileApply    bool
	reconcileEvalsDir string
	reconcileMarker   string
	suffixNames       string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile the store with JSON evaluation artifacts",
	Long: `Match JSON evaluation artifacts to stored rows by model slug and
conversation key, then backfill or rename.

Runs are dry runs unless --apply is given. Applying takes a verified backup
of the store first and is safe to repeat.`,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fill empty raw_output values from artifacts",
	Long: `Fill raw_output for rows whose value is NULL or empty, using the
payload of the matching artifact record. Rows that already hold a value are
never overwritten. The column is added when the table lacks it.

Examples:
  evalview reconcile backfill
  evalview reconcile backfill --evals-dir ./pt-pt-eval --apply`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

var renameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Rename slug model names to the artifacts' display names",
	Long: `Rewrite model_name from the artifact slug to the display name the
artifact records carry, for the conversations each artifact covers.

Examples:
  evalview reconcile rename
  evalview reconcile rename --apply --format json`,
	Args: cobra.NoArgs,
	RunE: runRename,
}

var renameSuffixCmd = &cobra.Command{
	Use:   "rename-suffix",
	Short: "Rename model names ending in a configured suffix",
	Long: `Rewrite every model_name ending in a suffix listed under "renames"
in the naming file. Rules are tried in file order; the first one that
matches a name wins.

Examples:
  evalview rename-suffix --names names.yaml
  evalview rename-suffix --apply`,
	Args: cobra.NoArgs,
	RunE: runRenameSuffix,
}

func init() {
	for _, c := range []*cobra.Command{backfillCmd, renameCmd} {
		c.Flags().BoolVar(&reconcileApply, "apply", false, "Write changes (default is a dry run)")
		c.Flags().StringVar(&reconcileEvalsDir, "evals-dir", "", "Artifact directory (default from config)")
		c.Flags().StringVar(&reconcileMarker, "marker", "", "Marker that ends a slug in artifact file names")
		reconcileCmd.AddCommand(c)
	}
	rootCmd.AddCommand(reconcileCmd)

	renameSuffixCmd.Flags().BoolVar(&reconcileApply, "apply", false, "Write changes (default is a dry run)")
	renameSuffixCmd.Flags().StringVar(&suffixNames, "names", "", "Naming file with suffix rules (.yaml or .toml)")
	rootCmd.AddCommand(renameSuffixCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	return runArtifactReconcile(cmd, reconcile.OpBackfill)
}

func runRename(cmd *cobra.Command, args []string) error {
	return runArtifactReconcile(cmd, reconcile.OpRename)
}

func runArtifactReconcile(cmd *cobra.Command, op reconcile.Operation) error {
	ctx, stop := newContext()
	defer stop()

	scanner, err := artifacts.NewScanner(artifacts.Options{
		Marker:        firstNonEmpty(reconcileMarker, cfg.Artifacts.Marker),
		IdentityField: cfg.Artifacts.IdentityField,
		KeyFields:     cfg.Artifacts.KeyFields,
		PayloadField:  cfg.Artifacts.PayloadField,
	}, logger)
	if err != nil {
		return err
	}
	scan, err := scanner.Scan(ctx, firstNonEmpty(reconcileEvalsDir, cfg.Artifacts.Dir))
	if err != nil {
		return err
	}
	mapping := reconcile.BuildMapping(scan.Artifacts)

	return withUpdater(ctx, cmd, func(u *reconcile.Updater) (*reconcile.Plan, error) {
		if op == reconcile.OpRename {
			return u.PlanRename(ctx, scan, mapping)
		}
		return u.PlanBackfill(ctx, scan, mapping)
	})
}

func runRenameSuffix(cmd *cobra.Command, args []string) error {
	names, err := loadNames(suffixNames)
	if err != nil {
		return err
	}
	if len(names.Renames) == 0 {
		return errors.Newf(errors.InvalidConfig, "no suffix renames configured; add a \"renames\" list to the naming file")
	}

	ctx, stop := newContext()
	defer stop()

	return withUpdater(ctx, cmd, func(u *reconcile.Updater) (*reconcile.Plan, error) {
		return u.PlanSuffixRename(ctx, names.Renames)
	})
}

// withUpdater opens the store, plans with plan and runs the result. The
// report is written even when the run fails part way.
func withUpdater(ctx context.Context, cmd *cobra.Command, plan func(*reconcile.Updater) (*reconcile.Plan, error)) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	backuper := &storage.FileBackuper{
		DB:      db,
		Options: storage.BackupOptions{Compression: cfg.Backup.Compression},
	}
	updater, err := reconcile.New(db, cfg.Store.Table, backuper, reconcile.DefaultOptions(), logger)
	if err != nil {
		return err
	}

	p, err := plan(updater)
	if err != nil {
		return err
	}

	rep, runErr := updater.Run(ctx, p, reconcileApply)
	if rep != nil {
		if err := writeOutput(cmd, rep); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if len(rep.Failures) > 0 {
		return errors.Newf(errors.ApplyFailure, "%d of %d pairs failed to apply", len(rep.Failures), len(p.Pairs))
	}
	return nil
}
