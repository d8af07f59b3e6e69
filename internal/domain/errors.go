package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode represents a specific type of error in the domain
type ErrorCode string

const (
	// Common errors
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrForbidden    ErrorCode = "FORBIDDEN"

	// Quiz flow errors
	ErrValidation         ErrorCode = "VALIDATION_ERROR"
	ErrQuizNotFound       ErrorCode = "QUIZ_NOT_FOUND"
	ErrSubmissionFailed   ErrorCode = "SUBMISSION_FAILED"
	ErrFeedbackFailed     ErrorCode = "FEEDBACK_FAILED"
	ErrFeedbackTimeout    ErrorCode = "FEEDBACK_TIMEOUT"
	ErrResultsFetchFailed ErrorCode = "RESULTS_FETCH_FAILED"
	ErrLLMServiceError    ErrorCode = "LLM_SERVICE_ERROR"
)

// User-visible messages. The remote collaborator only gives us free text, so these stay generic.
const (
	MsgIncompleteAnswers = "Please answer all questions before submitting."
	MsgSubmissionFailed  = "Failed to submit quiz. Please try again."
	MsgFeedbackFailed    = "Could not retrieve AI feedback. Please refresh and try again."
	MsgFeedbackFetch     = "Error fetching AI feedback. Please try again later."
	MsgFeedbackGaveUp    = "AI feedback is taking longer than expected. Check back later."
	MsgResultsFailed     = "Failed to fetch quiz results. Please try again later."
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements the json.Marshaler interface
func (e *DomainError) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{
		Code:    string(e.Code),
		Message: e.Message,
	})
}

// NewError creates a new DomainError
func NewError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first DomainError in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Helper functions for common errors
func NewNotFoundError(message string) *DomainError {
	return NewError(ErrNotFound, message, nil)
}

func NewInvalidInputError(message string) *DomainError {
	return NewError(ErrInvalidInput, message, nil)
}

func NewInternalError(message string, err error) *DomainError {
	return NewError(ErrInternal, message, err)
}

func NewUnauthorizedError(message string) *DomainError {
	return NewError(ErrUnauthorized, message, nil)
}

func NewForbiddenError(message string) *DomainError {
	return NewError(ErrForbidden, message, nil)
}

func NewValidationError(message string, err error) *DomainError {
	return NewError(ErrValidation, message, err)
}

func NewQuizNotFoundError(quizID string) *DomainError {
	return NewError(ErrQuizNotFound, fmt.Sprintf("Quiz not found with ID: %s", quizID), nil)
}

func NewSubmissionFailedError(err error) *DomainError {
	return NewError(ErrSubmissionFailed, MsgSubmissionFailed, err)
}

func NewFeedbackFailedError(message string, err error) *DomainError {
	return NewError(ErrFeedbackFailed, message, err)
}

func NewFeedbackTimeoutError(taskID string, attempts int) *DomainError {
	return NewError(ErrFeedbackTimeout, MsgFeedbackGaveUp,
		fmt.Errorf("task %s still processing after %d polls", taskID, attempts))
}

func NewResultsFetchFailedError(err error) *DomainError {
	return NewError(ErrResultsFetchFailed, MsgResultsFailed, err)
}

func NewLLMServiceError(err error) *DomainError {
	return NewError(ErrLLMServiceError, "Failed to process with LLM service", err)
}
