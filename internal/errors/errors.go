package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// InvalidFilter indicates a filter value that cannot be parsed (e.g. a non-numeric score bound)
	InvalidFilter ErrorCode = "INVALID_FILTER"
	// InvalidPage indicates a page number below 1
	InvalidPage ErrorCode = "INVALID_PAGE"
	// MalformedArtifact indicates an artifact file that could not be read or validated
	MalformedArtifact ErrorCode = "MALFORMED_ARTIFACT"
	// AmbiguousIdentity indicates a slug whose records carry more than one identity value
	AmbiguousIdentity ErrorCode = "AMBIGUOUS_IDENTITY"
	// UnmatchedPair indicates a (slug, key) pair with no matching rows
	UnmatchedPair ErrorCode = "UNMATCHED_PAIR"
	// BackupFailure indicates the store copy failed or could not be verified
	BackupFailure ErrorCode = "BACKUP_FAILURE"
	// ApplyFailure indicates an update statement failed for one planned pair
	ApplyFailure ErrorCode = "APPLY_FAILURE"
	// StoreNotFound indicates no evaluation store could be located
	StoreNotFound ErrorCode = "STORE_NOT_FOUND"
	// ArtifactsNotFound indicates the artifacts directory does not exist
	ArtifactsNotFound ErrorCode = "ARTIFACTS_NOT_FOUND"
	// InvalidConfig indicates a configuration value that cannot be used
	InvalidConfig ErrorCode = "INVALID_CONFIG"
	// NotFound indicates a requested record does not exist
	NotFound ErrorCode = "NOT_FOUND"
	// Unauthorized indicates a missing or wrong API token
	Unauthorized ErrorCode = "UNAUTHORIZED"
	// RateLimited indicates the client exceeded its request rate
	RateLimited ErrorCode = "RATE_LIMITED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// EvalError represents an evalview error with code, message, and suggestions
type EvalError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error
}

// New creates a new EvalError with the default suggested fixes for its code
func New(code ErrorCode, message string, cause error) *EvalError {
	return &EvalError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Newf creates a new EvalError with a formatted message and no cause
func Newf(code ErrorCode, format string, args ...interface{}) *EvalError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *EvalError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EvalError) Unwrap() error {
	return e.cause
}

// Is reports whether target is an EvalError with the same code.
func (e *EvalError) Is(target error) bool {
	t, ok := target.(*EvalError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *EvalError) WithDetails(details interface{}) *EvalError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first EvalError in err's chain,
// or InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var e *EvalError
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalError
}

// HasCode reports whether err's chain contains an EvalError with the given code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &EvalError{Code: code})
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	StoreNotFound: {
		{
			Type:        RunCommand,
			Command:     "evalview inspect --db <path>",
			Safe:        true,
			Description: "Point evalview at an existing SQLite store",
		},
	},
	ArtifactsNotFound: {
		{
			Type:        RunCommand,
			Command:     "evalview reconcile backfill --evals-dir <dir>",
			Safe:        true,
			Description: "Pass the directory holding the JSON evaluation artifacts",
		},
	},
	BackupFailure: {
		{
			Type:        RunCommand,
			Command:     "df -h .",
			Safe:        true,
			Description: "Check free space next to the store before retrying --apply",
		},
	},
	AmbiguousIdentity: {
		{
			Type:        OpenDocs,
			Description: "Remove duplicate model_name values from the artifact files for this slug",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
