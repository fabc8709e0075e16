package domain

import (
	"errors"
	"fmt"
	"time"
)

// PipelineError represents a failure at one stage of the assessment pipeline
type PipelineError struct {
	Code      string    `json:"code"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Err       error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches a PipelineError against the sentinel carrying the same code.
func (e *PipelineError) Is(target error) bool {
	var other *PipelineError
	if !errors.As(target, &other) {
		return false
	}
	return other.Stage == "" && other.Code == e.Code
}

// Error codes for different failure scenarios
const (
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeClassification  = "CLASSIFICATION_ERROR"
	ErrCodeSource          = "SOURCE_ERROR"
	ErrCodeModelInvocation = "MODEL_INVOCATION_ERROR"
	ErrCodeOutputContract  = "OUTPUT_CONTRACT_VIOLATION"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeStorage         = "STORAGE_ERROR"
)

// Sentinels for errors.Is matching.
var (
	ErrConfiguration   = &PipelineError{Code: ErrCodeConfiguration}
	ErrClassification  = &PipelineError{Code: ErrCodeClassification}
	ErrModelInvocation = &PipelineError{Code: ErrCodeModelInvocation}
	ErrOutputContract  = &PipelineError{Code: ErrCodeOutputContract}
	ErrStorage         = &PipelineError{Code: ErrCodeStorage}
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrSourceTimeout is the context cause set when an evidence source exceeds its
// own time budget, as opposed to the caller giving up.
var ErrSourceTimeout = errors.New("evidence source timed out")

// NewPipelineError creates a new PipelineError with timestamp
func NewPipelineError(code, stage, message string, err error) *PipelineError {
	return &PipelineError{
		Code:      code,
		Stage:     stage,
		Message:   message,
		Err:       err,
		Timestamp: time.Now().UTC(),
	}
}

// ErrorCode extracts the pipeline code from err, or "" when err is not a PipelineError.
func ErrorCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
