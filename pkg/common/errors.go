package common

import (
	"context"
	"errors"
	"fmt"
)

// Error codes shared by the extraction pipeline, the normalizer and the service
const (
	ErrCodeDecoding        = "DECODING_FAILED"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeUnknownGenre    = "UNKNOWN_GENRE"
	ErrCodeArtifactMissing = "ARTIFACT_MISSING"
	ErrCodeAnalysis        = "ANALYSIS_FAILED"
	ErrCodeInvalidInput    = "INVALID_INPUT"
)

// Sentinels for errors.Is; matching is by code
var (
	ErrDecode          = &PredictionError{Code: ErrCodeDecoding, Message: "audio decoding failed"}
	ErrTimeout         = &PredictionError{Code: ErrCodeTimeout, Message: "extraction timed out"}
	ErrUnknownGenre    = &PredictionError{Code: ErrCodeUnknownGenre, Message: "unknown genre"}
	ErrArtifactMissing = &PredictionError{Code: ErrCodeArtifactMissing, Message: "artifact missing"}
	ErrAnalysis        = &PredictionError{Code: ErrCodeAnalysis, Message: "analysis failed"}
	ErrInvalidInput    = &PredictionError{Code: ErrCodeInvalidInput, Message: "invalid input"}
)

// PredictionError represents a failure anywhere between upload and score
type PredictionError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
	Cause   error          `json:"-"`
}

func (e *PredictionError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *PredictionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PredictionError carrying the same code
func (e *PredictionError) Is(target error) bool {
	t, ok := target.(*PredictionError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewPredictionError creates a new prediction error
func NewPredictionError(code, message string, cause error) *PredictionError {
	return &PredictionError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPredictionErrorWithFields creates a new prediction error with context fields
func NewPredictionErrorWithFields(code, message string, cause error, fields map[string]any) *PredictionError {
	return &PredictionError{
		Code:    code,
		Message: message,
		Fields:  fields,
		Cause:   cause,
	}
}

func NewDecodeError(message string, cause error) *PredictionError {
	return NewPredictionError(ErrCodeDecoding, message, cause)
}

func NewTimeoutError(message string, cause error) *PredictionError {
	return NewPredictionError(ErrCodeTimeout, message, cause)
}

func NewUnknownGenreError(genre string) *PredictionError {
	return NewPredictionErrorWithFields(ErrCodeUnknownGenre,
		fmt.Sprintf("unknown genre: %s", genre), nil,
		map[string]any{"track_genre": genre})
}

func NewArtifactMissingError(name, path string, cause error) *PredictionError {
	return NewPredictionErrorWithFields(ErrCodeArtifactMissing,
		fmt.Sprintf("%s artifact not loadable: %s", name, path), cause,
		map[string]any{"artifact": name, "path": path})
}

func NewAnalysisError(message string, cause error) *PredictionError {
	return NewPredictionError(ErrCodeAnalysis, message, cause)
}

func NewInvalidInputError(message string, cause error) *PredictionError {
	return NewPredictionError(ErrCodeInvalidInput, message, cause)
}

// CodeOf returns the code of the first PredictionError in the chain, or ""
func CodeOf(err error) string {
	var pe *PredictionError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// FromContext converts a context error into a TimeoutError when the deadline
// passed, and returns other errors untouched
func FromContext(err error, stage string) error {
	if err == nil || CodeOf(err) == ErrCodeTimeout {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(fmt.Sprintf("%s exceeded the extraction budget", stage), err)
	}
	return err
}
