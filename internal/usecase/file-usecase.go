package usecase

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/pkg/local"
)

const correctedFileMimeType = "text/plain"

var (
	ErrStaleFileAction = errors.New("newer action on the same file superseded this result")
	ErrEmptyPrompt     = errors.New("custom action needs a prompt")
)

// Transcript is the part of a chat session the orchestrators write to.
type Transcript interface {
	Post(sender model.Sender, text string, media model.Media) model.Message
	Remove(id int64) bool
	Update(id int64, patch func(*model.Message)) bool
	FindFile(fileID string) (model.Message, bool)
	Notify(notice string)
}

type FileDispatcher interface {
	UploadFile(ctx context.Context, upload model.FileUpload) (model.UploadResult, error)
	PerformFileAction(ctx context.Context, fileID string, action model.FileAction, prompt string) (model.FileActionResult, error)
}

type FileUsecaseDeps struct {
	Dispatcher FileDispatcher
	Transcript Transcript
	Logger     *log.Logger
}

// FileUsecase drives uploads and file actions of one chat session and merges
// their results into its transcript.
type FileUsecase struct {
	FileUsecaseDeps
	language local.Language

	mu          sync.Mutex
	generations map[string]uint64
}

func NewFileUsecase(deps FileUsecaseDeps, language local.Language) *FileUsecase {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	return &FileUsecase{
		FileUsecaseDeps: deps,
		language:        language,
		generations:     make(map[string]uint64),
	}
}

// Upload shows a placeholder while the file is sent and replaces it with the
// stored file, followed by any corrected file and text the backend returned.
func (f *FileUsecase) Upload(ctx context.Context, upload model.FileUpload) error {
	placeholder := f.Transcript.Post(
		model.SenderUser, "", model.FileMedia{
			Name:        upload.Name,
			URL:         upload.LocalURI,
			MimeType:    upload.MimeType,
			UploadState: model.UploadStateUploading,
		},
	)

	res, err := f.Dispatcher.UploadFile(ctx, upload)
	f.Transcript.Remove(placeholder.ID)
	if err != nil {
		f.Transcript.Post(model.SenderAssistant, TextUploadFailed.Text(f.language), nil)
		return err
	}

	fileType := firstNonEmpty(res.FileType, upload.MimeType)
	f.Transcript.Post(
		model.SenderUser, "", model.FileMedia{
			Name:         firstNonEmpty(res.FileName, upload.Name),
			URL:          res.URL,
			MimeType:     fileType,
			UploadState:  model.UploadStateDone,
			CorrectedURL: res.CorrectedURL,
		},
	)
	if res.CorrectedURL != "" {
		f.Transcript.Post(
			model.SenderAssistant, "", model.FileMedia{
				Name:        TextCorrectedFile.Text(f.language),
				URL:         res.CorrectedURL,
				MimeType:    fileType,
				UploadState: model.UploadStateDone,
			},
		)
	}
	if res.Text != "" {
		f.Transcript.Post(model.SenderAssistant, res.Text, nil)
	}
	return nil
}

// RunAction dispatches action for fileID and merges the result. When another
// action on the same file starts before this one returns, this result is
// dropped and ErrStaleFileAction returned.
func (f *FileUsecase) RunAction(ctx context.Context, fileID string, action model.FileAction, prompt string) error {
	if action == model.FileActionCustom && prompt == "" {
		return ErrEmptyPrompt
	}
	generation := f.begin(fileID)

	res, err := f.Dispatcher.PerformFileAction(ctx, fileID, action, prompt)
	if !f.isLatest(fileID, generation) {
		f.Logger.Debug("dropping stale file action result", "file", fileID, "action", action)
		return ErrStaleFileAction
	}
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			f.Transcript.Post(model.SenderAssistant, firstNonEmpty(rejected.Detail, TextFileActionFailed.Text(f.language)), nil)
			return err
		}
		f.Transcript.Post(model.SenderAssistant, TextFileActionFailed.Text(f.language), nil)
		f.Transcript.Notify(TextFileActionFailed.Text(f.language))
		return err
	}

	f.merge(fileID, action, res)
	return nil
}

func (f *FileUsecase) merge(fileID string, action model.FileAction, res model.FileActionResult) {
	switch {
	case res.ImageURL != "":
		f.Transcript.Post(model.SenderAssistant, "", model.ImageMedia{URL: res.ImageURL})
	case action == model.FileActionFix && res.CorrectedURL != "":
		f.Transcript.Post(
			model.SenderAssistant, "", model.FileMedia{
				Name:        TextCorrectedFile.Text(f.language),
				URL:         res.CorrectedURL,
				MimeType:    correctedFileMimeType,
				UploadState: model.UploadStateDone,
			},
		)
		if source, ok := f.Transcript.FindFile(fileID); ok {
			f.Transcript.Update(
				source.ID, func(m *model.Message) {
					file, _ := m.File()
					file.CorrectedURL = res.CorrectedURL
					m.Media = file
				},
			)
		}
	case action == model.FileActionTranslate && res.TranslatedURL != "":
		f.Transcript.Post(
			model.SenderAssistant, "", model.FileMedia{
				Name:        TextTranslatedFile.Text(f.language),
				URL:         res.TranslatedURL,
				MimeType:    correctedFileMimeType,
				UploadState: model.UploadStateDone,
			},
		)
	}
	if res.Text != "" {
		f.Transcript.Post(model.SenderAssistant, res.Text, nil)
	}
	if res.Analysis != "" {
		f.Transcript.Post(model.SenderAssistant, res.Analysis, nil)
	}
}

func (f *FileUsecase) begin(fileID string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generations[fileID]++
	return f.generations[fileID]
}

func (f *FileUsecase) isLatest(fileID string, generation uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generations[fileID] == generation
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
