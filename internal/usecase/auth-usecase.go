package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/iamvkosarev/lingro/config"
	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/pkg/gotrue"
)

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrConfirmationRequired  = errors.New("email confirmation required")
	ErrInvalidCredentials    = errors.New("email and password are required")
	defaultAuthSessionLength = time.Hour
)

type AuthProvider interface {
	SignIn(ctx context.Context, email, password string) (*gotrue.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*gotrue.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*gotrue.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

type AuthStorage interface {
	SaveSession(ctx context.Context, session model.AuthSession, ttl time.Duration) error
	GetSession(ctx context.Context, userID uuid.UUID) (model.AuthSession, error)
	DeleteSession(ctx context.Context, userID uuid.UUID) error
}

type AuthUsecaseDeps struct {
	Provider AuthProvider
	Storage  AuthStorage
	Logger   *log.Logger
}

// AuthUsecase signs users in through the auth provider and keeps their
// sessions for token checks.
type AuthUsecase struct {
	AuthUsecaseDeps
	secret []byte
	now    func() time.Time
}

func NewAuthUsecase(deps AuthUsecaseDeps, cfg config.Auth) *AuthUsecase {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	var secret []byte
	if cfg.JWTSecret != "" {
		secret = []byte(cfg.JWTSecret)
	}
	return &AuthUsecase{
		AuthUsecaseDeps: deps,
		secret:          secret,
		now:             time.Now,
	}
}

func (a *AuthUsecase) SignUp(ctx context.Context, email, password string, role model.UserRole, language string) (model.AuthSession, error) {
	if email == "" || password == "" {
		return model.AuthSession{}, ErrInvalidCredentials
	}
	metadata := map[string]any{"role": role.String()}
	if language != "" {
		metadata["language"] = language
	}
	s, err := a.Provider.SignUp(ctx, email, password, metadata)
	if errors.Is(err, gotrue.ErrNoSession) {
		return model.AuthSession{}, ErrConfirmationRequired
	}
	if err != nil {
		return model.AuthSession{}, fmt.Errorf("failed to sign up: %w", err)
	}
	return a.store(ctx, s)
}

func (a *AuthUsecase) SignIn(ctx context.Context, email, password string) (model.AuthSession, error) {
	if email == "" || password == "" {
		return model.AuthSession{}, ErrInvalidCredentials
	}
	s, err := a.Provider.SignIn(ctx, email, password)
	if err != nil {
		return model.AuthSession{}, fmt.Errorf("failed to sign in: %w", err)
	}
	return a.store(ctx, s)
}

func (a *AuthUsecase) Refresh(ctx context.Context, refreshToken string) (model.AuthSession, error) {
	s, err := a.Provider.Refresh(ctx, refreshToken)
	if err != nil {
		return model.AuthSession{}, fmt.Errorf("failed to refresh session: %w", err)
	}
	return a.store(ctx, s)
}

// SignOut revokes the token at the provider and forgets the stored session.
func (a *AuthUsecase) SignOut(ctx context.Context, session model.AuthSession) error {
	if err := a.Provider.SignOut(ctx, session.AccessToken); err != nil {
		a.Logger.Warn("provider sign out failed", "user", session.UserID, "error", err)
	}
	if err := a.Storage.DeleteSession(ctx, session.UserID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Authenticate resolves an access token to its session. With a JWT secret
// the signature is verified; without one the token must match the session
// stored at sign-in.
func (a *AuthUsecase) Authenticate(ctx context.Context, accessToken string) (model.AuthSession, error) {
	claims, err := a.parseClaims(accessToken)
	if err != nil {
		return model.AuthSession{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.AuthSession{}, fmt.Errorf("%w: invalid subject: %w", ErrUnauthorized, err)
	}

	stored, err := a.Storage.GetSession(ctx, userID)
	if err != nil && !errors.Is(err, model.ErrAuthSessionDoesNotExist) {
		return model.AuthSession{}, fmt.Errorf("failed to get session: %w", err)
	}
	if a.secret == nil {
		if err != nil || stored.AccessToken != accessToken || stored.Expired(a.now()) {
			return model.AuthSession{}, fmt.Errorf("%w: unknown session", ErrUnauthorized)
		}
	}
	if stored.AccessToken == accessToken {
		return stored, nil
	}
	return model.AuthSession{
		UserID:      userID,
		Email:       claims.Email,
		AccessToken: accessToken,
		ExpiresAt:   expiresAt(claims),
	}, nil
}

type authClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (a *AuthUsecase) parseClaims(accessToken string) (*authClaims, error) {
	claims := &authClaims{}
	if a.secret != nil {
		_, err := jwt.ParseWithClaims(
			accessToken, claims, func(*jwt.Token) (any, error) {
				return a.secret, nil
			},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(a.now),
		)
		if err != nil {
			return nil, err
		}
		return claims, nil
	}

	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, err
	}
	if exp := expiresAt(claims); !exp.IsZero() && !a.now().Before(exp) {
		return nil, jwt.ErrTokenExpired
	}
	return claims, nil
}

func (a *AuthUsecase) store(ctx context.Context, s *gotrue.Session) (model.AuthSession, error) {
	userID, err := uuid.Parse(s.User.ID)
	if err != nil {
		return model.AuthSession{}, fmt.Errorf("failed to parse user id %s: %w", s.User.ID, err)
	}

	session := model.AuthSession{
		UserID:       userID,
		Email:        s.User.Email,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    a.sessionExpiry(s),
	}
	ttl := session.ExpiresAt.Sub(a.now())
	if ttl <= 0 {
		ttl = defaultAuthSessionLength
	}
	if err = a.Storage.SaveSession(ctx, session, ttl); err != nil {
		return model.AuthSession{}, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// sessionExpiry prefers the exp claim of the access token and falls back to
// what the provider reported.
func (a *AuthUsecase) sessionExpiry(s *gotrue.Session) time.Time {
	claims := &authClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err == nil {
		if exp := expiresAt(claims); !exp.IsZero() {
			return exp
		}
	}
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	if s.ExpiresIn > 0 {
		return a.now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return a.now().Add(defaultAuthSessionLength)
}

func expiresAt(claims *authClaims) time.Time {
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
