package model

import (
	"path"
	"strings"
	"time"
)

type Sender string

const (
	SenderUser      = Sender("user")
	SenderAssistant = Sender("assistant")
)

type MediaKind string

const (
	MediaImage = MediaKind("image")
	MediaAudio = MediaKind("audio")
	MediaFile  = MediaKind("file")
)

type UploadState string

const (
	UploadStateUploading = UploadState("uploading")
	UploadStateDone      = UploadState("done")
	UploadStateError     = UploadState("error")
)

// Media is the non-text payload of a message. The set of implementations is
// closed, so a message carries at most one media variant.
type Media interface {
	Kind() MediaKind
	media()
}

type ImageMedia struct {
	URL string
}

func (ImageMedia) Kind() MediaKind { return MediaImage }
func (ImageMedia) media()          {}

type AudioMedia struct {
	URI           string
	DurationLabel string
	Waveform      []int
}

func (AudioMedia) Kind() MediaKind { return MediaAudio }
func (AudioMedia) media()          {}

type FileMedia struct {
	Name         string
	URL          string
	MimeType     string
	UploadState  UploadState
	CorrectedURL string
}

func (FileMedia) Kind() MediaKind { return MediaFile }
func (FileMedia) media()          {}

// FileID is the identifier the file backend expects for actions: the last
// path segment of the stored file URL.
func (f FileMedia) FileID() string {
	u := f.URL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return path.Base(strings.TrimRight(u, "/"))
}

type Message struct {
	ID        int64
	CreatedAt time.Time
	Sender    Sender
	Text      string
	Media     Media
}

func (m Message) File() (FileMedia, bool) {
	f, ok := m.Media.(FileMedia)
	return f, ok
}

func (m Message) Image() (ImageMedia, bool) {
	i, ok := m.Media.(ImageMedia)
	return i, ok
}

func (m Message) Audio() (AudioMedia, bool) {
	a, ok := m.Media.(AudioMedia)
	return a, ok
}
