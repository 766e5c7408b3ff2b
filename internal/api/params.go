package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"evalview/internal/errors"
	"evalview/internal/query"
)

// QueryParams are the parsed parameters of a list request
type QueryParams struct {
	Filter query.FilterSpec
	Page   int
}

// ParseQueryParams extracts the filter and page from the request. Filter
// parameters share names with the FilterSpec JSON fields; model_name is
// accepted as an alias of model.
func ParseQueryParams(r *http.Request) (*QueryParams, error) {
	q := r.URL.Query()

	raw := query.RawFilter{
		Model:          first(q.Get("model"), q.Get("model_name")),
		Category:       q.Get("category"),
		ConversationID: q.Get("conversation_id"),
		HasRawOutput:   q.Get("has_raw_output"),
		MinScore:       q.Get("min_score"),
		MaxScore:       q.Get("max_score"),
	}
	filter, err := query.ParseFilter(raw)
	if err != nil {
		return nil, err
	}

	page := 1
	if s := strings.TrimSpace(q.Get("page")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.New(errors.InvalidPage, fmt.Sprintf("page %q is not an integer", s), nil)
		}
		page = n
	}

	return &QueryParams{Filter: filter, Page: page}, nil
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
