package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/internal/usecase"
)

// respondJSON sends a JSON response with the given status code
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.log.Error("Failed to encode JSON response", "error", err)
		}
	}
}

// respondError sends an error response with appropriate status code
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON format")
		return false
	}
	return true
}

// handleError maps usecase errors onto HTTP statuses
func (s *Server) handleError(w http.ResponseWriter, err error) {
	var validationErr *ValidationErr
	if errors.As(err, &validationErr) {
		s.respondError(w, http.StatusBadRequest, validationErr.Error())
		return
	}

	var rejected *usecase.RejectedError
	if errors.As(err, &rejected) {
		s.respondError(w, http.StatusBadGateway, rejected.Error())
		return
	}

	switch {
	case errors.Is(err, usecase.ErrUnauthorized):
		s.respondError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, usecase.ErrSessionNotFound),
		errors.Is(err, usecase.ErrFileNotInSession),
		errors.Is(err, usecase.ErrMessageNotHandled):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, usecase.ErrEmptyMessage),
		errors.Is(err, usecase.ErrEmptyPrompt),
		errors.Is(err, usecase.ErrEmptyText),
		errors.Is(err, usecase.ErrUnknownVoice),
		errors.Is(err, usecase.ErrInvalidCredentials):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, usecase.ErrPermissionDenied):
		s.respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, usecase.ErrNotConfigured):
		s.respondError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, usecase.ErrSessionClosed):
		s.respondError(w, http.StatusGone, err.Error())
	case errors.Is(err, model.ErrAuthSessionDoesNotExist):
		s.respondError(w, http.StatusUnauthorized, "Unauthorized")
	default:
		s.log.Error("Internal server error", "error", err)
		s.respondError(w, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

type ValidationErr struct {
	Message string
}

func (e *ValidationErr) Error() string {
	return e.Message
}

func NewValidationError(message string) error {
	return &ValidationErr{
		Message: message,
	}
}
