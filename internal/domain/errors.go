package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific type of error in the domain
type ErrorCode string

const (
	// Common errors
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrInvalidID    ErrorCode = "INVALID_ID"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Import / generation pipeline errors
	ErrSourceContentMissing   ErrorCode = "SOURCE_CONTENT_MISSING"
	ErrArchiveInvalid         ErrorCode = "ARCHIVE_INVALID"
	ErrQueueOrUploadFailed    ErrorCode = "QUEUE_OR_UPLOAD_FAILED"
	ErrAIGenerationExhausted  ErrorCode = "AI_GENERATION_EXHAUSTED"
	ErrDuplicateModuleTitle   ErrorCode = "DUPLICATE_MODULE_TITLE"
	ErrEnqueueConflict        ErrorCode = "ENQUEUE_CONFLICT"
	ErrCommitFailed           ErrorCode = "COMMIT_FAILED"

	// Quiz session errors
	ErrQuizNotFound    ErrorCode = "QUIZ_NOT_FOUND"
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrTimeLimit       ErrorCode = "TIME_LIMIT_EXCEEDED"
	ErrAttemptsLimit   ErrorCode = "ATTEMPTS_LIMIT_EXCEEDED"
	ErrInvalidAnswer   ErrorCode = "INVALID_ANSWER"
	ErrNoQuestions     ErrorCode = "NO_QUESTIONS"
)

// ErrJobCanceled is the sentinel for cooperative job cancellation. It is a
// distinct terminal outcome, never a hard failure: callers must stop, roll
// back and report {ok:false, canceled:true}.
var ErrJobCanceled = errors.New("job canceled")

// DomainError represents a domain-specific error
type DomainError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
	Cause   error     `json:"-"`
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// NewError creates a new DomainError
func NewError(code ErrorCode, message string, cause error) *DomainError {
	return &DomainError{Code: code, Message: message, Cause: cause}
}

// WithHint attaches a human-readable hint for operators.
func (e *DomainError) WithHint(hint string) *DomainError {
	e.Hint = hint
	return e
}

// Helper constructors for common errors
func NewNotFoundError(message string) *DomainError {
	return NewError(ErrNotFound, message, nil)
}

func NewInvalidIDError(raw string) *DomainError {
	return NewError(ErrInvalidID, fmt.Sprintf("invalid identifier: %s", raw), nil)
}

func NewInvalidInputError(message string) *DomainError {
	return NewError(ErrInvalidInput, message, nil)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewError(ErrInternal, message, cause)
}

func NewQuizNotFoundError(quizID string) *DomainError {
	return NewError(ErrQuizNotFound, fmt.Sprintf("quiz not found: %s", quizID), nil)
}

func NewEnqueueConflictError(existingJobID string) *DomainError {
	return NewError(ErrEnqueueConflict, fmt.Sprintf("job already enqueued: %s", existingJobID), nil).
		WithHint("A job for the same content is already running; wait for it or cancel it first.")
}

// CodeOf extracts the domain error code from an error chain, defaulting to
// ErrInternal for unclassified errors.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrInternal
}
