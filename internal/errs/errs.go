// Package errs defines the error kinds shared across the backend. Every error
// that crosses a package boundary is marked with exactly one kind so callers
// can branch with errors.Is without parsing messages.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks rejected user input (empty prompt, malformed body).
	ErrValidation = errors.New("validation error")
	// ErrAuth marks an invalid or expired credential.
	ErrAuth = errors.New("auth error")
	// ErrProvider marks an unreachable, misbehaving or timed-out backend
	// (embedding provider, LLM, auth verifier transport failures).
	ErrProvider = errors.New("provider error")
	// ErrConfig marks missing or inconsistent startup configuration. Fatal;
	// never produced at request time.
	ErrConfig = errors.New("config error")
)

// Mark wraps err with the given kind. Both remain visible to errors.Is.
func Mark(kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Markf builds a new error of the given kind.
func Markf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
