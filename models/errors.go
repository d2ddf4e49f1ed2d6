package models

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Error codes carried by failed results and API responses.
const (
	ErrCodeTimeout      = "SCRAPE_TIMEOUT"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeNetwork      = "NETWORK_ERROR"
	ErrCodeExtraction   = "CONTENT_EXTRACTION_FAILED"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeCanceled     = "CANCELED"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"

	// Synthesis error codes.
	ErrCodeNoContent         = "NO_CONTENT"
	ErrCodeModelNotLoaded    = "MODEL_NOT_LOADED"
	ErrCodeDependencyMissing = "DEPENDENCY_MISSING"
	ErrCodeWeightsMissing    = "WEIGHTS_MISSING"
	ErrCodeContextOverflow   = "CONTEXT_OVERFLOW"
	ErrCodeInference         = "INFERENCE_FAILED"
)

// MaxErrorLength bounds the error text stored in result records.
const MaxErrorLength = 300

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type Error struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error.
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *Error) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Describe renders err for storage in a result record, truncated to
// MaxErrorLength characters.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	return Truncate(err.Error(), MaxErrorLength)
}

// Truncate shortens s to at most n characters, marking the cut with "...".
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}
