package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/iamvkosarev/lingro/config"
	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/pkg/backend"
)

var (
	ErrUnknownVoice = errors.New("unknown voice")
	ErrEmptyText    = errors.New("text is empty")

	Voices = []string{"alloy", "nova", "echo", "fable", "onyx", "shimmer"}
)

// RejectedError is a file backend answer with a non-2xx status. Detail is
// the server-provided message and may be empty.
type RejectedError struct {
	StatusCode int
	Detail     string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("file backend rejected request with status %d", e.StatusCode)
	}
	return fmt.Sprintf("file backend rejected request with status %d: %s", e.StatusCode, e.Detail)
}

type FileBackend interface {
	UploadFile(ctx context.Context, name, mimeType string, body io.Reader) (*backend.UploadResponse, error)
	PerformAction(ctx context.Context, action backend.ActionRequest) (*backend.ActionResponse, error)
	SynthesizeSpeech(ctx context.Context, speech backend.SpeechRequest) (*backend.SpeechResponse, error)
}

type BackendUsecaseDeps struct {
	Backend FileBackend
}

type BackendUsecase struct {
	BackendUsecaseDeps
	cfg config.Backend
}

func NewBackendUsecase(deps BackendUsecaseDeps, cfg config.Backend) *BackendUsecase {
	return &BackendUsecase{
		BackendUsecaseDeps: deps,
		cfg:                cfg,
	}
}

func (b *BackendUsecase) UploadFile(ctx context.Context, upload model.FileUpload) (model.UploadResult, error) {
	res, err := b.Backend.UploadFile(ctx, upload.Name, upload.MimeType, upload.Body)
	if err != nil {
		return model.UploadResult{}, fmt.Errorf("failed to upload file %s: %w", upload.Name, convertBackendErr(err))
	}
	return model.UploadResult{
		URL:          res.URL,
		FileName:     res.FileName,
		FileType:     res.FileType,
		CorrectedURL: res.CorrectedURL,
		Text:         res.Text,
	}, nil
}

// PerformFileAction runs action on the stored file. A custom action is sent
// as analyze with prompt as its instruction.
func (b *BackendUsecase) PerformFileAction(
	ctx context.Context,
	fileID string,
	action model.FileAction,
	prompt string,
) (model.FileActionResult, error) {
	res, err := b.Backend.PerformAction(
		ctx, backend.ActionRequest{
			FileID: fileID,
			Action: string(action.Wire()),
			Prompt: prompt,
		},
	)
	if err != nil {
		return model.FileActionResult{}, fmt.Errorf("failed to %s file %s: %w", action, fileID, convertBackendErr(err))
	}
	return model.FileActionResult{
		ImageURL:      res.ImageURL,
		CorrectedURL:  res.CorrectedURL,
		TranslatedURL: res.TranslatedURL,
		Text:          res.Text,
		Analysis:      res.Analysis,
	}, nil
}

// SynthesizeSpeech returns a link to text spoken with voice. An empty voice
// means the configured default.
func (b *BackendUsecase) SynthesizeSpeech(ctx context.Context, text, voice string) (string, error) {
	if text == "" {
		return "", ErrEmptyText
	}
	if voice == "" {
		voice = b.cfg.DefaultVoice
	}
	if !slices.Contains(Voices, voice) {
		return "", fmt.Errorf("%w: %s", ErrUnknownVoice, voice)
	}
	res, err := b.Backend.SynthesizeSpeech(ctx, backend.SpeechRequest{Text: text, Voice: voice})
	if err != nil {
		return "", fmt.Errorf("failed to synthesize speech: %w", convertBackendErr(err))
	}
	return res.URL, nil
}

func convertBackendErr(err error) error {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return &RejectedError{StatusCode: apiErr.StatusCode, Detail: apiErr.Detail()}
	}
	return err
}
