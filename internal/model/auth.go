package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAuthSessionDoesNotExist = errors.New("auth session doesn't exist")

// AuthSession is the signed-in state returned by the auth provider.
type AuthSession struct {
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
