package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/redis/go-redis/v9"
)

type profileInternal struct {
	TelegramID int64  `json:"telegram_id"`
	Role       string `json:"role"`
	Language   string `json:"language"`
	Voice      string `json:"voice"`
}

func newProfileInternal(p model.Profile) profileInternal {
	return profileInternal{
		TelegramID: p.TelegramID,
		Role:       p.Role.String(),
		Language:   p.Language,
		Voice:      p.Voice,
	}
}

func (p profileInternal) toModel() model.Profile {
	return model.Profile{
		TelegramID: p.TelegramID,
		Role:       model.ParseUserRole(p.Role),
		Language:   p.Language,
		Voice:      p.Voice,
	}
}

type UserStorage struct {
	rdb *redis.Client
}

func NewUserStorage(rdb *redis.Client) *UserStorage {
	return &UserStorage{
		rdb: rdb,
	}
}

func (u *UserStorage) GetProfile(ctx context.Context, telegramID int64) (model.Profile, error) {
	key := getProfileKey(telegramID)
	raw, err := u.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Profile{}, model.ErrProfileDoesNotExist
		}
		return model.Profile{}, fmt.Errorf("failed to get profile %s: %w", key, err)
	}
	var profile profileInternal
	if err = json.Unmarshal([]byte(raw), &profile); err != nil {
		return model.Profile{}, fmt.Errorf("failed to unmarshal profile %s: %w", key, err)
	}
	return profile.toModel(), nil
}

func (u *UserStorage) SaveProfile(ctx context.Context, profile model.Profile) error {
	key := getProfileKey(profile.TelegramID)
	raw, err := json.Marshal(newProfileInternal(profile))
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err = u.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save profile %s: %w", key, err)
	}
	return nil
}

func getProfileKey(id int64) string {
	return fmt.Sprintf("telegram_%d", id)
}
