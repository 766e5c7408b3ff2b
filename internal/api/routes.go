package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evalview/internal/query"
	"evalview/internal/version"
)

// Endpoint documents one route on the index page
type Endpoint struct {
	Route       string `json:"route"`
	Description string `json:"description"`
}

// IndexResponse is served at /
type IndexResponse struct {
	Name      string     `json:"name"`
	Version   string     `json:"version"`
	Endpoints []Endpoint `json:"endpoints"`
}

var endpoints = []Endpoint{
	{"GET /health", "Liveness"},
	{"GET /ready", "Store reachable and table readable"},
	{"GET /evaluations", "Results view, newest first. Filters: model, category, conversation_id, has_raw_output, min_score, max_score, page"},
	{"GET /conversations", "Conversation view, same filters"},
	{"GET /conversations/{model}/{id}", "Every turn of one conversation"},
	{"GET /filters", "Distinct models and categories"},
	{"GET /metrics", "Prometheus metrics"},
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)

	s.router.HandleFunc("GET /evaluations", s.handleList(query.ViewResults))
	s.router.HandleFunc("GET /conversations", s.handleList(query.ViewConversations))
	s.router.HandleFunc("GET /conversations/{model}/{id}", s.handleConversation)
	s.router.HandleFunc("GET /filters", s.handleFilters)

	s.router.Handle("GET /metrics", promhttp.Handler())

	s.router.HandleFunc("GET /{$}", s.handleIndex)
	s.router.HandleFunc("/", s.handleUnrouted)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, IndexResponse{
		Name:      "evalview HTTP API",
		Version:   version.Version,
		Endpoints: endpoints,
	}, http.StatusOK)
}

// handleUnrouted answers requests no route matched. The API is read-only.
func (s *Server) handleUnrouted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		MethodNotAllowed(w)
		return
	}
	NotFound(w, "no route for "+r.URL.Path)
}
