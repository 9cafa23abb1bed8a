package usecase

import (
	"sync"
	"time"

	"github.com/iamvkosarev/lingro/internal/model"
)

// memTranscript is a Transcript backed by a plain model.Transcript.
type memTranscript struct {
	mu         sync.Mutex
	ids        *model.IDSource
	transcript model.Transcript
	notices    []string
	recording  []model.RecordingStatus
}

func newMemTranscript() *memTranscript {
	return &memTranscript{ids: model.NewIDSource(time.Now)}
}

func (m *memTranscript) Post(sender model.Sender, text string, media model.Media) model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, createdAt := m.ids.Next()
	msg := model.Message{ID: id, CreatedAt: createdAt, Sender: sender, Text: text, Media: media}
	m.transcript = m.transcript.Append(msg)
	return msg
}

func (m *memTranscript) Remove(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ok bool
	m.transcript, ok = m.transcript.RemoveByID(id)
	return ok
}

func (m *memTranscript) Update(id int64, patch func(*model.Message)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ok bool
	m.transcript, ok = m.transcript.UpdateByID(id, patch)
	return ok
}

func (m *memTranscript) FindFile(fileID string) (model.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcript.FindFile(fileID)
}

func (m *memTranscript) Notify(notice string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, notice)
}

func (m *memTranscript) ShowRecording(status model.RecordingStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recording = append(m.recording, status)
}

func (m *memTranscript) messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcript.Messages()
}
