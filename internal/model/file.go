package model

import (
	"fmt"
	"io"
)

// FileUpload is a file picked on the device, ready to be sent to the backend.
type FileUpload struct {
	Name     string
	MimeType string
	// LocalURI is what the placeholder shows while the upload is in flight.
	LocalURI string
	Body     io.Reader
}

type UploadResult struct {
	URL          string
	FileName     string
	FileType     string
	CorrectedURL string
	Text         string
}

type FileAction string

const (
	FileActionFix       = FileAction("fix")
	FileActionTranslate = FileAction("translate")
	FileActionAnalyze   = FileAction("analyze")
	FileActionCustom    = FileAction("custom")
)

func ParseFileAction(s string) (FileAction, error) {
	switch a := FileAction(s); a {
	case FileActionFix, FileActionTranslate, FileActionAnalyze, FileActionCustom:
		return a, nil
	default:
		return "", fmt.Errorf("unknown file action %q", s)
	}
}

// Wire maps an action onto the set the backend understands: a free-text
// custom action is sent as analyze with the text as prompt.
func (a FileAction) Wire() FileAction {
	if a == FileActionCustom {
		return FileActionAnalyze
	}
	return a
}

type FileActionResult struct {
	ImageURL      string
	CorrectedURL  string
	TranslatedURL string
	Text          string
	Analysis      string
}
