package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"evalview/internal/api"
)

var (
	servePort  int
	serveHost  string
	serveNames string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP API server",
	Long: `Start the evalview HTTP API server. It exposes the results and
conversation views, filter options, health checks and Prometheus metrics.

Examples:
  evalview serve
  evalview serve --port 8080 --names names.yaml
  EVALVIEW_SERVER_AUTHTOKENHASH='$2a$12$...' evalview serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
	serveCmd.Flags().StringVar(&serveNames, "names", "", "Display-name file (.yaml or .toml)")
}

func runServe(cmd *cobra.Command, args []string) error {
	host := firstNonEmpty(serveHost, cfg.Server.Host)
	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	names, err := loadNames(serveNames)
	if err != nil {
		return err
	}

	db, engine, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	server := api.NewServer(addr, engine, db, api.Options{
		Query:  cfg.Query,
		Server: cfg.Server,
		Names:  names.Lookup(),
	}, logger)

	ctx, stop := newContext()
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "evalview HTTP API listening on http://%s\n", addr)
		fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", "error", err.Error())
			return err
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", "error", err.Error())
			return err
		}
		logger.Info("Server stopped gracefully")
	}

	return nil
}
