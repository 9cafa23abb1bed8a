package model

import "errors"

var ErrProfileDoesNotExist = errors.New("profile doesn't exist")

// Profile holds the onboarding choices of a chat front-end user.
type Profile struct {
	TelegramID int64
	Role       UserRole
	Language   string
	Voice      string
}
