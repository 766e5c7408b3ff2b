package query

import (
	"fmt"
	"math"

	"evalview/internal/config"
	"evalview/internal/errors"
)

// View is a named presentation of the evaluation table: an ordering and a
// fixed page size. Every ordering ends with id so pages are stable.
type View struct {
	Name     string
	PageSize int
	// order lists canonical columns; a trailing "-" sorts descending
	order []string
}

// View names
const (
	ViewResults       = "results"
	ViewConversations = "conversations"
)

// ResultsView lists the most recent records first
func ResultsView(pageSize int) View {
	return View{Name: ViewResults, PageSize: pageSize, order: []string{"id-"}}
}

// ConversationsView groups records by conversation, turns in order
func ConversationsView(pageSize int) View {
	return View{
		Name:     ViewConversations,
		PageSize: pageSize,
		order:    []string{"conversation_id", "turn_number", "id"},
	}
}

// ViewByName resolves a view using the page sizes from cfg
func ViewByName(name string, cfg config.QueryConfig) (View, error) {
	switch name {
	case "", ViewResults:
		return ResultsView(cfg.ResultsPageSize), nil
	case ViewConversations:
		return ConversationsView(cfg.ConversationPageSize), nil
	}
	return View{}, errors.New(errors.InvalidFilter, fmt.Sprintf("unknown view %q", name), nil)
}

// PageRequest selects one page of a view
type PageRequest struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Offset returns the number of rows skipped before this page. It saturates at
// math.MaxInt64, so a page far past the end selects no rows.
func (p PageRequest) Offset() int64 {
	if p.Page < 1 || p.Size < 1 {
		return 0
	}
	skip, size := int64(p.Page-1), int64(p.Size)
	if skip > math.MaxInt64/size {
		return math.MaxInt64
	}
	return skip * size
}

// Page builds a request for page n of v
func (v View) Page(n int) PageRequest {
	return PageRequest{Page: n, Size: v.PageSize}
}
