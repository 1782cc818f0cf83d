package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeProcessing   ErrorType = "processing"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInternal     ErrorType = "internal"

	// ErrorTypeInvalidImage means the input could not be decoded as an image.
	ErrorTypeInvalidImage ErrorType = "invalid_image_input"
	// ErrorTypeOCREngine means no recognizer could run at all.
	ErrorTypeOCREngine ErrorType = "ocr_engine_failure"
	// ErrorTypeNoResults means the extraction finished with nothing above
	// the confidence threshold.
	ErrorTypeNoResults ErrorType = "no_results_above_threshold"
	// ErrorTypePersistence means the schedule store rejected the write.
	// Extraction results are kept.
	ErrorTypePersistence ErrorType = "persistence_failure"
	// ErrorTypeQueue means a background job could not be enqueued.
	ErrorTypeQueue ErrorType = "queue"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newAppError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return newAppError(ErrorTypeNetwork, http.StatusBadGateway, message, cause)
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return newAppError(ErrorTypeProcessing, http.StatusUnprocessableEntity, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return newAppError(ErrorTypeTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// NewInvalidImageError reports undecodable or empty image input
func NewInvalidImageError(message string, cause error) *AppError {
	return newAppError(ErrorTypeInvalidImage, http.StatusBadRequest, message, cause)
}

// NewOCREngineError reports that no OCR engine could be used
func NewOCREngineError(message string, cause error) *AppError {
	return newAppError(ErrorTypeOCREngine, http.StatusServiceUnavailable, message, cause)
}

// NewNoResultsError reports an extraction without usable results
func NewNoResultsError(message string) *AppError {
	return newAppError(ErrorTypeNoResults, http.StatusUnprocessableEntity, message, nil)
}

// NewPersistenceError reports a failed write to the schedule store
func NewPersistenceError(message string, cause error) *AppError {
	return newAppError(ErrorTypePersistence, http.StatusBadGateway, message, cause)
}

// NewQueueError reports a failed background enqueue
func NewQueueError(message string, cause error) *AppError {
	return newAppError(ErrorTypeQueue, http.StatusServiceUnavailable, message, cause)
}

// IsType checks if the error, or any error it wraps, is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
