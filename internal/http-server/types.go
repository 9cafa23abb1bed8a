package httpserver

import (
	"time"

	"github.com/iamvkosarev/lingro/internal/model"
)

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Language string `json:"language"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AuthResponse struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func newAuthResponse(s model.AuthSession) AuthResponse {
	return AuthResponse{
		UserID:       s.UserID.String(),
		Email:        s.Email,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
	}
}

type CreateSessionRequest struct {
	Language         string `json:"language"`
	Role             string `json:"role"`
	LearningLanguage string `json:"learning_language"`
}

type SessionResponse struct {
	ID               string            `json:"id"`
	Language         string            `json:"language"`
	Role             string            `json:"role"`
	LearningLanguage string            `json:"learning_language,omitempty"`
	Messages         []MessageResponse `json:"messages"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

type PickImageRequest struct {
	URI string `json:"uri"`
}

type VoiceNoteRequest struct {
	URI        string `json:"uri"`
	DurationMs int64  `json:"duration_ms"`
}

type FileActionRequest struct {
	Action string `json:"action"`
	Prompt string `json:"prompt"`
}

type GestureRequest struct {
	Kind string  `json:"kind"`
	DX   float64 `json:"dx"`
	DY   float64 `json:"dy"`
}

type GestureResponse struct {
	State string `json:"state"`
}

type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type SpeechResponse struct {
	URL string `json:"url"`
}

type AcceptedResponse struct {
	Status string `json:"status"`
}

type MediaResponse struct {
	Kind          string `json:"kind"`
	URL           string `json:"url,omitempty"`
	Name          string `json:"name,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
	UploadState   string `json:"upload_state,omitempty"`
	CorrectedURL  string `json:"corrected_url,omitempty"`
	FileID        string `json:"file_id,omitempty"`
	DurationLabel string `json:"duration_label,omitempty"`
	Waveform      []int  `json:"waveform,omitempty"`
}

type MessageResponse struct {
	ID        int64          `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Sender    string         `json:"sender"`
	Text      string         `json:"text,omitempty"`
	Media     *MediaResponse `json:"media,omitempty"`
}

func newMessageResponse(m model.Message) MessageResponse {
	resp := MessageResponse{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		Sender:    string(m.Sender),
		Text:      m.Text,
	}
	switch media := m.Media.(type) {
	case model.ImageMedia:
		resp.Media = &MediaResponse{Kind: string(media.Kind()), URL: media.URL}
	case model.AudioMedia:
		resp.Media = &MediaResponse{
			Kind:          string(media.Kind()),
			URL:           media.URI,
			DurationLabel: media.DurationLabel,
			Waveform:      media.Waveform,
		}
	case model.FileMedia:
		resp.Media = &MediaResponse{
			Kind:         string(media.Kind()),
			URL:          media.URL,
			Name:         media.Name,
			MimeType:     media.MimeType,
			UploadState:  string(media.UploadState),
			CorrectedURL: media.CorrectedURL,
		}
		if media.UploadState == model.UploadStateDone {
			resp.Media.FileID = media.FileID()
		}
	}
	return resp
}

func newMessagesResponse(msgs []model.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, newMessageResponse(m))
	}
	return out
}

type RecordingResponse struct {
	State         string `json:"state"`
	DurationLabel string `json:"duration_label"`
}

// EventResponse is one frame of the session event stream.
type EventResponse struct {
	Kind      string             `json:"kind"`
	Message   *MessageResponse   `json:"message,omitempty"`
	MessageID int64              `json:"message_id,omitempty"`
	Typing    *bool              `json:"typing,omitempty"`
	Notice    string             `json:"notice,omitempty"`
	Recording *RecordingResponse `json:"recording,omitempty"`
	Messages  []MessageResponse  `json:"messages,omitempty"`
}

func newEventResponse(ev model.Event) EventResponse {
	resp := EventResponse{
		Kind:      string(ev.Kind),
		MessageID: ev.MessageID,
		Notice:    ev.Notice,
	}
	if ev.Message != nil {
		m := newMessageResponse(*ev.Message)
		resp.Message = &m
	}
	if ev.Kind == model.EventTyping {
		typing := ev.Typing
		resp.Typing = &typing
	}
	if ev.Recording != nil {
		resp.Recording = &RecordingResponse{
			State:         string(ev.Recording.State),
			DurationLabel: ev.Recording.DurationLabel,
		}
	}
	return resp
}
