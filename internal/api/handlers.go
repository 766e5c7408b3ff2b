package api

import (
	"net/http"

	"evalview/internal/errors"
	"evalview/internal/query"
	"evalview/internal/storage"
)

// EvaluationRow is a stored record plus the name it is shown under
type EvaluationRow struct {
	storage.Evaluation
	DisplayName string `json:"display_name"`
}

// ListResponse is one page of a view with stats over the whole filtered set
type ListResponse struct {
	View       string           `json:"view"`
	Filter     query.FilterSpec `json:"filter"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalCount int64            `json:"totalCount"`
	TotalPages int              `json:"totalPages"`
	Stats      query.Stats      `json:"stats"`
	Rows       []EvaluationRow  `json:"rows"`
}

// ConversationResponse holds every turn of one conversation
type ConversationResponse struct {
	Model          string          `json:"model"`
	DisplayName    string          `json:"display_name"`
	ConversationID string          `json:"conversation_id"`
	Turns          []EvaluationRow `json:"turns"`
}

// ModelOption is one entry of the model filter
type ModelOption struct {
	Model       string `json:"model"`
	DisplayName string `json:"display_name"`
}

// FiltersResponse lists the values the filters can take
type FiltersResponse struct {
	Models     []ModelOption `json:"models"`
	Categories []string      `json:"categories"`
}

// handleList serves one page of the named view
func (s *Server) handleList(viewName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := ParseQueryParams(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		view, err := query.ViewByName(viewName, s.queryCfg)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		res, err := s.engine.Query(r.Context(), params.Filter, view.Page(params.Page), view)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		WriteJSON(w, ListResponse{
			View:       res.View,
			Filter:     res.Filter,
			Page:       res.Page,
			PageSize:   res.PageSize,
			TotalCount: res.TotalCount,
			TotalPages: res.TotalPages,
			Stats:      res.Stats,
			Rows:       s.displayRows(res.Rows),
		}, http.StatusOK)
	}
}

// handleConversation serves GET /conversations/{model}/{id}
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	model, id := r.PathValue("model"), r.PathValue("id")

	turns, err := s.engine.Conversation(r.Context(), model, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(turns) == 0 {
		NotFound(w, "no conversation "+id+" for model "+model)
		return
	}

	WriteJSON(w, ConversationResponse{
		Model:          model,
		DisplayName:    s.names.DisplayName(model),
		ConversationID: id,
		Turns:          s.displayRows(turns),
	}, http.StatusOK)
}

// handleFilters serves the distinct models and categories
func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	opts, err := s.engine.FilterOptions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := FiltersResponse{
		Models:     make([]ModelOption, 0, len(opts.Models)),
		Categories: opts.Categories,
	}
	for _, m := range opts.Models {
		resp.Models = append(resp.Models, ModelOption{Model: m, DisplayName: s.names.DisplayName(m)})
	}
	WriteJSON(w, resp, http.StatusOK)
}

func (s *Server) displayRows(rows []storage.Evaluation) []EvaluationRow {
	out := make([]EvaluationRow, len(rows))
	for i, e := range rows {
		out[i] = EvaluationRow{Evaluation: e, DisplayName: s.names.DisplayName(e.ModelName)}
	}
	return out
}

// writeError logs failures that are not the client's fault and writes the
// mapped error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapErrorToStatus(errors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"path", r.URL.Path,
			"code", errors.CodeOf(err),
			"error", err.Error(),
			"request_id", GetRequestID(r.Context()),
		)
	}
	WriteEvalError(w, err)
}
