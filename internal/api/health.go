package api

import (
	"net/http"
	"os"
	"time"

	"evalview/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Store     *StoreHealth `json:"store,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// StoreHealth describes the served SQLite store
type StoreHealth struct {
	Path              string `json:"path"`
	Table             string `json:"table"`
	Rows              int64  `json:"rows"`
	DatabaseSizeBytes int64  `json:"databaseSizeBytes"`
	WalSizeBytes      int64  `json:"walSizeBytes"`
}

// handleHealth responds to health check requests (simple liveness check)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	}, http.StatusOK)
}

// handleReady reports ready once the evaluation table can be read
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ready", Timestamp: time.Now().UTC()}

	rows, err := s.db.RowCount(r.Context(), s.engine.Table())
	if err != nil {
		resp.Status = "not_ready"
		resp.Error = err.Error()
		WriteJSON(w, resp, http.StatusServiceUnavailable)
		return
	}

	resp.Store = &StoreHealth{
		Path:              s.db.Path(),
		Table:             s.engine.Table(),
		Rows:              rows,
		DatabaseSizeBytes: fileSize(s.db.Path()),
		WalSizeBytes:      fileSize(s.db.Path() + "-wal"),
	}
	WriteJSON(w, resp, http.StatusOK)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
