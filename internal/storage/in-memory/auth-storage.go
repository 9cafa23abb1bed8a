package in_memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iamvkosarev/lingro/internal/model"
)

type authEntry struct {
	session  model.AuthSession
	deadline time.Time
}

// AuthStorage keeps auth sessions until their ttl runs out.
type AuthStorage struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]authEntry
	now      func() time.Time
}

func NewAuthStorage() *AuthStorage {
	return &AuthStorage{
		sessions: make(map[uuid.UUID]authEntry),
		now:      time.Now,
	}
}

func (a *AuthStorage) SaveSession(_ context.Context, session model.AuthSession, ttl time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry := authEntry{session: session}
	if ttl > 0 {
		entry.deadline = a.now().Add(ttl)
	}
	a.sessions[session.UserID] = entry
	return nil
}

func (a *AuthStorage) GetSession(_ context.Context, userID uuid.UUID) (model.AuthSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.sessions[userID]
	if !ok {
		return model.AuthSession{}, model.ErrAuthSessionDoesNotExist
	}
	if !entry.deadline.IsZero() && !a.now().Before(entry.deadline) {
		delete(a.sessions, userID)
		return model.AuthSession{}, model.ErrAuthSessionDoesNotExist
	}
	return entry.session, nil
}

func (a *AuthStorage) DeleteSession(_ context.Context, userID uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, userID)
	return nil
}
