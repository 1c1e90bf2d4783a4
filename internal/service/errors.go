package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/contentgate/internal/db"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrContentNotFound also matches db.ErrNotFound.
	ErrContentNotFound   = fmt.Errorf("content %w", db.ErrNotFound)
	ErrChannelResolution = errors.New("could not resolve YouTube channel ID")
	ErrAttemptNotFound   = errors.New("verification attempt not found or expired")
	ErrInvalidTransition = errors.New("verification attempt is not in the expected state")
	ErrInvalidCredential = errors.New("invalid admin email or password")
)

// ValidationError reports bad user input. The message is safe to show to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

var validate = validator.New()

// validateEmail checks the shape of an address without altering it; stored
// emails keep the visitor's original casing.
func validateEmail(email string) error {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return newValidationError("email", "Please enter your email address.")
	}
	if err := validate.Var(trimmed, "max=320,email"); err != nil {
		return newValidationError("email", "Please enter a valid email address.")
	}
	return nil
}
