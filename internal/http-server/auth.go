package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/internal/usecase"
)

type ctxKey int

const authSessionKey ctxKey = iota

// AuthMiddleware resolves the bearer token into an auth session. The event
// stream also accepts the token as the access_token query parameter since
// browsers cannot set headers on a websocket handshake.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		session, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.log.Debug("authentication failed", "error", err)
			s.handleError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), authSessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func authFromContext(ctx context.Context) (model.AuthSession, bool) {
	session, ok := ctx.Value(authSessionKey).(model.AuthSession)
	return session, ok
}

func (s *Server) HandleSignup(w http.ResponseWriter, r *http.Request) {
	req := new(SignUpRequest)
	if !s.decodeJSON(w, r, req) {
		return
	}
	if err := validateCredentials(req.Email, req.Password); err != nil {
		s.handleError(w, err)
		return
	}

	session, err := s.auth.SignUp(r.Context(), normalizeEmail(req.Email), req.Password, model.ParseUserRole(req.Role), req.Language)
	if errors.Is(err, usecase.ErrConfirmationRequired) {
		s.respondJSON(w, http.StatusAccepted, AcceptedResponse{Status: "confirmation_required"})
		return
	}
	if err != nil {
		s.log.Warn("sign up failed", "email", req.Email, "error", err)
		s.handleAuthError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, newAuthResponse(session))
}

func (s *Server) HandleSignin(w http.ResponseWriter, r *http.Request) {
	req := new(SignInRequest)
	if !s.decodeJSON(w, r, req) {
		return
	}
	if err := validateCredentials(req.Email, req.Password); err != nil {
		s.handleError(w, err)
		return
	}

	session, err := s.auth.SignIn(r.Context(), normalizeEmail(req.Email), req.Password)
	if err != nil {
		s.log.Warn("sign in failed", "email", req.Email, "error", err)
		s.handleAuthError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newAuthResponse(session))
}

func (s *Server) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	req := new(RefreshRequest)
	if !s.decodeJSON(w, r, req) {
		return
	}
	if req.RefreshToken == "" {
		s.handleError(w, NewValidationError("refresh_token is required"))
		return
	}
	session, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newAuthResponse(session))
}

func (s *Server) HandleSignout(w http.ResponseWriter, r *http.Request) {
	session, _ := authFromContext(r.Context())
	if err := s.auth.SignOut(r.Context(), session); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAuthError reports provider rejections as bad credentials instead of
// a server failure.
func (s *Server) handleAuthError(w http.ResponseWriter, err error) {
	var validationErr *ValidationErr
	if errors.As(err, &validationErr) || errors.Is(err, usecase.ErrInvalidCredentials) {
		s.handleError(w, err)
		return
	}
	s.respondError(w, http.StatusUnauthorized, "Invalid credentials")
}
