package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"evalview/internal/errors"
	"evalview/internal/naming"
	"evalview/internal/paths"
	"evalview/internal/query"
	"evalview/internal/storage"
)

// defaultStoreName is created by import when no store exists yet
const defaultStoreName = "evaluations.db"

// newContext returns a context cancelled on SIGINT or SIGTERM
func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// storePath resolves the existing store from --db, config, or discovery
func storePath() (string, error) {
	root, err := os.Getwd()
	if err != nil {
		return "", err
	}
	explicit := dbFlag
	if explicit == "" {
		explicit = cfg.Store.Path
	}
	return paths.FindStore(explicit, root, cfg.Store.Candidates)
}

// openStore opens the resolved store; it never creates one
func openStore() (*storage.DB, error) {
	path, err := storePath()
	if err != nil {
		return nil, err
	}
	return storage.Open(path, logger)
}

// openOrCreateStore is openStore for commands that may start a new store
func openOrCreateStore() (*storage.DB, error) {
	if p := firstNonEmpty(dbFlag, cfg.Store.Path); p != "" {
		return storage.Open(p, logger)
	}

	path, err := storePath()
	if errors.HasCode(err, errors.StoreNotFound) {
		root, werr := os.Getwd()
		if werr != nil {
			return nil, werr
		}
		path, err = filepath.Join(root, defaultStoreName), nil
	}
	if err != nil {
		return nil, err
	}
	return storage.Open(path, logger)
}

// openEngine opens the store and builds a query engine over the configured table
func openEngine() (*storage.DB, *query.Engine, error) {
	db, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	engine, err := query.NewEngine(db, cfg.Store.Table, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, engine, nil
}

// loadNames reads the naming file at path, or the configured one. No file
// means an empty table.
func loadNames(path string) (*naming.File, error) {
	if path == "" {
		path = cfg.Naming.File
	}
	if path == "" {
		return &naming.File{}, nil
	}
	return naming.LoadFile(path)
}

// writeOutput renders resp in the selected format to the command's stdout
func writeOutput(cmd *cobra.Command, resp interface{}) error {
	out, err := FormatResponse(resp, OutputFormat(formatFlag))
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
