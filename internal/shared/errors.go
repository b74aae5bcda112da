package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrForbidden indicates the signed-in principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// FetchError reports a failed read against the remote API.
type FetchError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("fetch %s: %s", e.Op, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MutationError reports a failed write after the user confirmed it.
type MutationError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *MutationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("mutate %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("mutate %s: %s", e.Op, e.Message)
}

func (e *MutationError) Unwrap() error { return e.Err }

// AuthExpiredError is returned when the remote API rejects the credential.
// Callers must sign the principal out.
type AuthExpiredError struct {
	Status int
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("credential rejected with status %d", e.Status)
}

// ValidationError collects per-field input errors found before any remote call.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsAuthExpired reports whether err carries an AuthExpiredError.
func IsAuthExpired(err error) bool {
	var target *AuthExpiredError
	return errors.As(err, &target)
}

// UserSafeMessage converts internal errors into a message that can be shown to end users.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		fetchErr    *FetchError
		mutationErr *MutationError
		validErr    *ValidationError
	)
	switch {
	case IsAuthExpired(err):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to do that."
	case errors.Is(err, ErrNotFound):
		return "The requested record could not be found."
	case errors.As(err, &validErr):
		return "Please correct the highlighted fields."
	case errors.As(err, &mutationErr):
		if mutationErr.Message != "" && mutationErr.Status >= 400 && mutationErr.Status < 500 {
			return mutationErr.Message
		}
		return "The change could not be saved. Please try again."
	case errors.As(err, &fetchErr):
		if fetchErr.Message != "" && fetchErr.Status >= 400 && fetchErr.Status < 500 {
			return fetchErr.Message
		}
		return "We could not load this data. Please try again."
	}
	return "Something went wrong. Please try again."
}
