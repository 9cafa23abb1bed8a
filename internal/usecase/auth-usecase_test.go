package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/iamvkosarev/lingro/config"
	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/pkg/gotrue"
)

const testJWTSecret = "super-secret-jwt-token-with-at-least-32-characters"

type fakeAuthProvider struct {
	session   *gotrue.Session
	err       error
	signedOut []string
	metadata  map[string]any
}

func (p *fakeAuthProvider) SignIn(context.Context, string, string) (*gotrue.Session, error) {
	return p.session, p.err
}

func (p *fakeAuthProvider) SignUp(_ context.Context, _, _ string, metadata map[string]any) (*gotrue.Session, error) {
	p.metadata = metadata
	return p.session, p.err
}

func (p *fakeAuthProvider) Refresh(context.Context, string) (*gotrue.Session, error) {
	return p.session, p.err
}

func (p *fakeAuthProvider) SignOut(_ context.Context, accessToken string) error {
	p.signedOut = append(p.signedOut, accessToken)
	return nil
}

type fakeAuthStorage struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]model.AuthSession
	ttls     map[uuid.UUID]time.Duration
}

func newFakeAuthStorage() *fakeAuthStorage {
	return &fakeAuthStorage{
		sessions: make(map[uuid.UUID]model.AuthSession),
		ttls:     make(map[uuid.UUID]time.Duration),
	}
}

func (s *fakeAuthStorage) SaveSession(_ context.Context, session model.AuthSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UserID] = session
	s.ttls[session.UserID] = ttl
	return nil
}

func (s *fakeAuthStorage) GetSession(_ context.Context, userID uuid.UUID) (model.AuthSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		return model.AuthSession{}, model.ErrAuthSessionDoesNotExist
	}
	return session, nil
}

func (s *fakeAuthStorage) DeleteSession(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

func signToken(t *testing.T, secret string, userID uuid.UUID, exp time.Time) string {
	t.Helper()
	claims := authClaims{
		Email: "student@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestAuth(provider AuthProvider, storage AuthStorage, secret string) *AuthUsecase {
	return NewAuthUsecase(
		AuthUsecaseDeps{Provider: provider, Storage: storage},
		config.Auth{JWTSecret: secret},
	)
}

func TestAuthSignInStoresSessionUntilTokenExpiry(t *testing.T) {
	userID := uuid.New()
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signToken(t, testJWTSecret, userID, exp)
	provider := &fakeAuthProvider{session: &gotrue.Session{
		AccessToken:  token,
		RefreshToken: "refresh",
		User:         gotrue.User{ID: userID.String(), Email: "student@example.com"},
	}}
	storage := newFakeAuthStorage()
	auth := newTestAuth(provider, storage, testJWTSecret)

	session, err := auth.SignIn(context.Background(), "student@example.com", "password")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if session.UserID != userID || session.RefreshToken != "refresh" {
		t.Fatalf("unexpected session %+v", session)
	}
	if !session.ExpiresAt.Equal(exp) {
		t.Fatalf("ExpiresAt = %v, want %v", session.ExpiresAt, exp)
	}
	ttl := storage.ttls[userID]
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("ttl = %v, want within an hour", ttl)
	}
}

func TestAuthSignInRequiresCredentials(t *testing.T) {
	auth := newTestAuth(&fakeAuthProvider{}, newFakeAuthStorage(), "")
	if _, err := auth.SignIn(context.Background(), "", "password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthSignUpConfirmationRequired(t *testing.T) {
	provider := &fakeAuthProvider{err: gotrue.ErrNoSession, session: &gotrue.Session{}}
	auth := newTestAuth(provider, newFakeAuthStorage(), "")

	_, err := auth.SignUp(context.Background(), "t@example.com", "password", model.UserRoleTeacher, "en")
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("err = %v, want ErrConfirmationRequired", err)
	}
	if provider.metadata["role"] != "teacher" || provider.metadata["language"] != "en" {
		t.Fatalf("metadata = %v", provider.metadata)
	}
}

func TestAuthAuthenticateVerifiesSignature(t *testing.T) {
	userID := uuid.New()
	auth := newTestAuth(&fakeAuthProvider{}, newFakeAuthStorage(), testJWTSecret)

	good := signToken(t, testJWTSecret, userID, time.Now().Add(time.Hour))
	session, err := auth.Authenticate(context.Background(), good)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if session.UserID != userID || session.Email != "student@example.com" {
		t.Fatalf("unexpected session %+v", session)
	}

	forged := signToken(t, "another-secret-another-secret-another", userID, time.Now().Add(time.Hour))
	if _, err = auth.Authenticate(context.Background(), forged); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("forged token err = %v, want ErrUnauthorized", err)
	}

	expired := signToken(t, testJWTSecret, userID, time.Now().Add(-time.Minute))
	if _, err = auth.Authenticate(context.Background(), expired); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired token err = %v, want ErrUnauthorized", err)
	}
}

func TestAuthAuthenticateWithoutSecretNeedsStoredSession(t *testing.T) {
	userID := uuid.New()
	token := signToken(t, "provider-side-secret-provider-side", userID, time.Now().Add(time.Hour))
	provider := &fakeAuthProvider{session: &gotrue.Session{
		AccessToken: token,
		User:        gotrue.User{ID: userID.String()},
	}}
	storage := newFakeAuthStorage()
	auth := newTestAuth(provider, storage, "")

	if _, err := auth.Authenticate(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("before sign in err = %v, want ErrUnauthorized", err)
	}
	if _, err := auth.SignIn(context.Background(), "a@example.com", "pw"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	session, err := auth.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if session.UserID != userID {
		t.Fatalf("UserID = %v, want %v", session.UserID, userID)
	}

	if err = auth.SignOut(context.Background(), session); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if len(provider.signedOut) != 1 || provider.signedOut[0] != token {
		t.Fatalf("provider sign out calls = %v", provider.signedOut)
	}
	if _, err = auth.Authenticate(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("after sign out err = %v, want ErrUnauthorized", err)
	}
}

func TestAuthAuthenticateRejectsGarbage(t *testing.T) {
	auth := newTestAuth(&fakeAuthProvider{}, newFakeAuthStorage(), "")
	if _, err := auth.Authenticate(context.Background(), "not-a-jwt"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}
