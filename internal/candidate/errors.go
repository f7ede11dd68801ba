package candidate

import (
	"errors"

	"candidate-service/internal/upload"
)

var (
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrValidation        = errors.New("validation failed")

	ErrStorageUnavailable = upload.ErrStorageUnavailable
	ErrFileRejected       = upload.ErrFileRejected
)

// Client-facing messages.
const (
	MsgRequiredFields = "First name, last name, and email are required"
	MsgDuplicateEmail = "Email already exists"
	MsgNotFound       = "Candidate not found"
	MsgInvalidID      = "Invalid candidate ID"
	MsgInternal       = "Internal server error"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every field that failed validation.
// Field and Message repeat the first entry, which is what the API returns.
type ValidationError struct {
	Field   string       `json:"field"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Fields:  []FieldError{{Field: field, Message: message}},
	}
}

func invalidFields(fields []FieldError) *ValidationError {
	return &ValidationError{Field: fields[0].Field, Message: fields[0].Message, Fields: fields}
}
