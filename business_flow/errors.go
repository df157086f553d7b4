package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Tenant context errors
	ErrMissingTenantContext = errors.New("tenant context is missing")

	// Suggestion errors
	ErrSuggestionNotFound   = errors.New("no live suggestion for group key")
	ErrMalformedSuggestion  = errors.New("suggestion payload has fewer than two distinct candidates")
	ErrGroupKeyRequired     = errors.New("group key is required")
	ErrSuggestionTTLInvalid = errors.New("suggestion TTL must be positive")

	// Merge errors
	ErrTransientConflict = errors.New("concurrent merge conflict, retries exhausted")

	// Resolution errors
	ErrCustomerIDRequired   = errors.New("customer id is required")
	ErrResolveBatchTooLarge = errors.New("resolve batch exceeds the maximum size")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsMissingTenantContext(err error) bool {
	return errors.Is(err, ErrMissingTenantContext)
}

func IsSuggestionNotFound(err error) bool {
	return errors.Is(err, ErrSuggestionNotFound)
}

func IsMalformedSuggestion(err error) bool {
	return errors.Is(err, ErrMalformedSuggestion)
}

func IsGroupKeyRequired(err error) bool {
	return errors.Is(err, ErrGroupKeyRequired)
}

func IsSuggestionTTLInvalid(err error) bool {
	return errors.Is(err, ErrSuggestionTTLInvalid)
}

func IsTransientConflict(err error) bool {
	return errors.Is(err, ErrTransientConflict)
}

func IsCustomerIDRequired(err error) bool {
	return errors.Is(err, ErrCustomerIDRequired)
}

func IsResolveBatchTooLarge(err error) bool {
	return errors.Is(err, ErrResolveBatchTooLarge)
}
