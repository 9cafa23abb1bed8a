package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/redis/go-redis/v9"
)

// AuthStorage keeps auth sessions as JSON values that expire with the token.
type AuthStorage struct {
	rdb *redis.Client
}

func NewAuthStorage(rdb *redis.Client) *AuthStorage {
	return &AuthStorage{
		rdb: rdb,
	}
}

func (a *AuthStorage) SaveSession(ctx context.Context, session model.AuthSession, ttl time.Duration) error {
	key := getAuthSessionKey(session.UserID)
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal auth session: %w", err)
	}
	if err = a.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save auth session %s: %w", key, err)
	}
	return nil
}

func (a *AuthStorage) GetSession(ctx context.Context, userID uuid.UUID) (model.AuthSession, error) {
	key := getAuthSessionKey(userID)
	raw, err := a.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.AuthSession{}, model.ErrAuthSessionDoesNotExist
		}
		return model.AuthSession{}, fmt.Errorf("failed to get auth session %s: %w", key, err)
	}
	var session model.AuthSession
	if err = json.Unmarshal([]byte(raw), &session); err != nil {
		return model.AuthSession{}, fmt.Errorf("failed to unmarshal auth session %s: %w", key, err)
	}
	return session, nil
}

func (a *AuthStorage) DeleteSession(ctx context.Context, userID uuid.UUID) error {
	key := getAuthSessionKey(userID)
	if err := a.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete auth session %s: %w", key, err)
	}
	return nil
}

func getAuthSessionKey(id uuid.UUID) string {
	return fmt.Sprintf("auth_session_%s", id)
}
