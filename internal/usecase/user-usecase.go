package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/pkg/local"
)

var ErrUnknownLanguage = errors.New("unknown language")

type ProfileStorage interface {
	GetProfile(ctx context.Context, telegramID int64) (model.Profile, error)
	SaveProfile(ctx context.Context, profile model.Profile) error
}

type UserUsecaseDeps struct {
	ProfileStorage ProfileStorage
}

// UserUsecase keeps the onboarding choices of chat front-end users.
type UserUsecase struct {
	UserUsecaseDeps
	defaultLanguage string
	defaultVoice    string
}

func NewUserUsecase(deps UserUsecaseDeps, defaultLanguage, defaultVoice string) *UserUsecase {
	return &UserUsecase{
		UserUsecaseDeps: deps,
		defaultLanguage: defaultLanguage,
		defaultVoice:    defaultVoice,
	}
}

// GetProfileForTelegramUser returns the stored profile, creating a default
// one on first contact.
func (u *UserUsecase) GetProfileForTelegramUser(ctx context.Context, telegramID int64) (model.Profile, error) {
	profile, err := u.ProfileStorage.GetProfile(ctx, telegramID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, model.ErrProfileDoesNotExist) {
		return model.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	profile = model.Profile{
		TelegramID: telegramID,
		Role:       model.UserRoleStudent,
		Language:   u.defaultLanguage,
		Voice:      u.defaultVoice,
	}
	if err = u.ProfileStorage.SaveProfile(ctx, profile); err != nil {
		return model.Profile{}, fmt.Errorf("failed to create profile: %w", err)
	}
	return profile, nil
}

func (u *UserUsecase) UpdateRole(ctx context.Context, telegramID int64, role model.UserRole) (model.Profile, error) {
	return u.update(ctx, telegramID, func(p *model.Profile) error {
		p.Role = role
		return nil
	})
}

func (u *UserUsecase) UpdateLanguage(ctx context.Context, telegramID int64, language string) (model.Profile, error) {
	return u.update(ctx, telegramID, func(p *model.Profile) error {
		if l := local.Language(language); l != local.Rus && l != local.Eng {
			return fmt.Errorf("%w: %s", ErrUnknownLanguage, language)
		}
		p.Language = language
		return nil
	})
}

func (u *UserUsecase) UpdateVoice(ctx context.Context, telegramID int64, voice string) (model.Profile, error) {
	return u.update(ctx, telegramID, func(p *model.Profile) error {
		if !slices.Contains(Voices, voice) {
			return fmt.Errorf("%w: %s", ErrUnknownVoice, voice)
		}
		p.Voice = voice
		return nil
	})
}

func (u *UserUsecase) update(ctx context.Context, telegramID int64, apply func(*model.Profile) error) (model.Profile, error) {
	profile, err := u.GetProfileForTelegramUser(ctx, telegramID)
	if err != nil {
		return model.Profile{}, err
	}
	if err = apply(&profile); err != nil {
		return model.Profile{}, err
	}
	if err = u.ProfileStorage.SaveProfile(ctx, profile); err != nil {
		return model.Profile{}, fmt.Errorf("failed to save profile: %w", err)
	}
	return profile, nil
}
