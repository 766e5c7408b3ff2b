package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"evalview/internal/errors"
)

// FilterSpec is a set of optional predicates over evaluation records. A nil
// field imposes no constraint; all non-nil fields are ANDed.
type FilterSpec struct {
	Model          *string  `json:"model,omitempty"`
	Category       *string  `json:"category,omitempty"`
	ConversationID *string  `json:"conversation_id,omitempty"`
	HasRawOutput   *bool    `json:"has_raw_output,omitempty"`
	MinScore       *float64 `json:"min_score,omitempty"`
	MaxScore       *float64 `json:"max_score,omitempty"`
}

// RawFilter holds filter values as they arrive from a query string or CLI
// flags. Empty strings mean "not set".
type RawFilter struct {
	Model          string
	Category       string
	ConversationID string
	HasRawOutput   string
	MinScore       string
	MaxScore       string
}

// ParseFilter turns raw strings into a FilterSpec. Surrounding whitespace is
// ignored, so a blank value is treated as absent rather than "equals empty".
func ParseFilter(raw RawFilter) (FilterSpec, error) {
	var f FilterSpec

	f.Model = optString(raw.Model)
	f.Category = optString(raw.Category)
	f.ConversationID = optString(raw.ConversationID)

	if v := strings.TrimSpace(raw.HasRawOutput); v != "" {
		b, err := parseFlag(v)
		if err != nil {
			return FilterSpec{}, errors.New(errors.InvalidFilter,
				fmt.Sprintf("has_raw_output must be a boolean, got %q", v), err)
		}
		f.HasRawOutput = &b
	}

	var err error
	if f.MinScore, err = parseBound("min_score", raw.MinScore); err != nil {
		return FilterSpec{}, err
	}
	if f.MaxScore, err = parseBound("max_score", raw.MaxScore); err != nil {
		return FilterSpec{}, err
	}

	return f, nil
}

// IsEmpty reports whether no predicate is active
func (f FilterSpec) IsEmpty() bool {
	return f.Model == nil && f.Category == nil && f.ConversationID == nil &&
		f.HasRawOutput == nil && f.MinScore == nil && f.MaxScore == nil
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func parseBound(name, s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.New(errors.InvalidFilter,
			fmt.Sprintf("%s must be a number, got %q", name, s), err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, errors.Newf(errors.InvalidFilter, "%s must be finite, got %q", name, s)
	}
	return &v, nil
}

func parseFlag(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}
