package in_memory

import (
	"context"
	"sync"

	"github.com/iamvkosarev/lingro/internal/model"
)

type UserStorage struct {
	mu       sync.RWMutex
	profiles map[int64]model.Profile
}

func NewUserStorage() *UserStorage {
	return &UserStorage{
		profiles: make(map[int64]model.Profile),
	}
}

func (u *UserStorage) GetProfile(_ context.Context, telegramID int64) (model.Profile, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	profile, ok := u.profiles[telegramID]
	if !ok {
		return model.Profile{}, model.ErrProfileDoesNotExist
	}
	return profile, nil
}

func (u *UserStorage) SaveProfile(_ context.Context, profile model.Profile) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.profiles[profile.TelegramID] = profile
	return nil
}
