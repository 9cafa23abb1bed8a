package httpserver

import (
	"net/mail"
	"strings"
)

const minPasswordLength = 6

func validateCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return NewValidationError("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return NewValidationError("invalid email format")
	}
	if len(password) < minPasswordLength {
		return NewValidationError("password must be at least 6 characters")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
