package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/iamvkosarev/lingro/config"
	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/pkg/local"
	"github.com/sourcegraph/conc"
)

var (
	ErrEmptyMessage      = errors.New("message is empty")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionClosed     = errors.New("session is closed")
	ErrFileNotInSession  = errors.New("file not found in session")
	ErrMessageNotHandled = errors.New("message has no file")
	ErrNotConfigured     = errors.New("feature is not configured")
)

type ChatDispatcher interface {
	SendChatMessage(ctx context.Context, history []model.Message, text string) (ChatReply, error)
}

type SessionDeps struct {
	Chat     ChatDispatcher
	Images   *ImageUsecase
	Backend  *BackendUsecase
	Recorder Recorder
	Prober   DurationProber
	Archive  RecordingArchive
	Logger   *log.Logger
}

type SessionOptions struct {
	Owner            string
	Language         local.Language
	Role             model.UserRole
	LearningLanguage string
}

// Session is one chat conversation: its transcript, the voice recorder and
// the file orchestrator writing into it, and the listeners watching it.
type Session struct {
	ID   string
	opts SessionOptions
	deps SessionDeps

	ids   *model.IDSource
	files *FileUsecase
	voice *VoiceUsecase

	ctx    context.Context
	cancel context.CancelFunc
	wg     *conc.WaitGroup

	mu         sync.Mutex
	transcript model.Transcript
	lastActive time.Time
	typing     int
	closed     bool

	emitMu       sync.Mutex
	listeners    map[int]func(model.Event)
	nextListener int
}

func newSession(id string, deps SessionDeps, opts SessionOptions, recorderCfg config.Recorder, storageCfg config.Storage) *Session {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id,
		opts:      opts,
		deps:      deps,
		ids:       model.NewIDSource(time.Now),
		ctx:       ctx,
		cancel:    cancel,
		wg:        conc.NewWaitGroup(),
		listeners: make(map[int]func(model.Event)),
	}
	logger := deps.Logger.With("session", id)
	s.deps.Logger = logger

	if deps.Backend != nil {
		s.files = NewFileUsecase(FileUsecaseDeps{Dispatcher: deps.Backend, Transcript: s, Logger: logger}, opts.Language)
	}
	if deps.Recorder != nil {
		s.voice = NewVoiceUsecase(
			VoiceUsecaseDeps{
				Recorder:   deps.Recorder,
				Prober:     deps.Prober,
				Archive:    deps.Archive,
				Transcript: s,
				Logger:     logger,
			},
			VoiceOptions{TickInterval: recorderCfg.TickInterval, ArchiveExpiry: storageCfg.PresignExpiry},
			opts.Language,
		)
	}
	s.reset()
	return s
}

func (s *Session) Options() SessionOptions {
	return s.opts
}

func (s *Session) Language() local.Language {
	return s.opts.Language
}

// Go runs fn in the background under the session context. Errors are logged;
// the transcript already carries whatever the user should see.
func (s *Session) Go(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		s.deps.Logger.Warn("session action skipped", "action", name, "error", ErrSessionClosed)
		return
	}
	s.wg.Go(
		func() {
			if err := fn(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.deps.Logger.Warn("session action failed", "action", name, "error", err)
			}
		},
	)
}

// Wait blocks until all background work started with Go has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.voice != nil {
		s.voice.Close(context.Background())
	}
	s.cancel()
	s.wg.Wait()
}

// SendText appends the user's text and answers it, either with image search
// results or with a chat model reply.
func (s *Session) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	history := s.Messages()
	s.Post(model.SenderUser, text, nil)

	s.setTyping(true)
	defer s.setTyping(false)

	if s.deps.Images != nil && IsImageRequest(text) {
		s.answerImageRequest(ctx, text)
		return nil
	}

	reply, err := s.deps.Chat.SendChatMessage(ctx, history, text)
	if err != nil {
		s.Post(model.SenderAssistant, TextChatFailed.Text(s.opts.Language), nil)
		return err
	}
	if reply.Trimmed {
		s.deps.Logger.Debug("chat context trimmed", "model", reply.Model)
	}
	s.Post(model.SenderAssistant, reply.Text, nil)
	return nil
}

func (s *Session) answerImageRequest(ctx context.Context, text string) {
	term := ExtractSearchTerm(text)
	if len([]rune(term)) < MinSearchTermLength {
		s.Post(model.SenderAssistant, TextClarifyImage.Text(s.opts.Language), nil)
		return
	}
	urls := s.deps.Images.SearchImages(ctx, term)
	if len(urls) == 0 {
		s.Post(model.SenderAssistant, TextNoImagesFormat.Format(s.opts.Language, term), nil)
		return
	}
	for _, u := range urls {
		s.Post(model.SenderAssistant, "", model.ImageMedia{URL: u})
	}
}

// PickImage appends an image the user chose from their device.
func (s *Session) PickImage(uri string) model.Message {
	return s.Post(model.SenderUser, "", model.ImageMedia{URL: uri})
}

// AppendVoiceNote appends a voice note recorded by the front-end itself.
func (s *Session) AppendVoiceNote(uri string, duration time.Duration) model.Message {
	return s.Post(model.SenderUser, "", NewAudioMedia(uri, duration))
}

func (s *Session) UploadFile(ctx context.Context, upload model.FileUpload) error {
	if s.files == nil {
		return fmt.Errorf("file backend: %w", ErrNotConfigured)
	}
	return s.files.Upload(ctx, upload)
}

func (s *Session) RunFileAction(ctx context.Context, fileID string, action model.FileAction, prompt string) error {
	if s.files == nil {
		return fmt.Errorf("file backend: %w", ErrNotConfigured)
	}
	if _, ok := s.FindFile(fileID); !ok {
		return fmt.Errorf("%w: %s", ErrFileNotInSession, fileID)
	}
	return s.files.RunAction(ctx, fileID, action, prompt)
}

// FileIDOf returns the backend file id of the resolved file in message id.
func (s *Session) FileIDOf(id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.transcript.Find(id)
	if !ok {
		return "", fmt.Errorf("message %d: %w", id, ErrMessageNotHandled)
	}
	f, ok := m.File()
	if !ok || f.UploadState != model.UploadStateDone {
		return "", fmt.Errorf("message %d: %w", id, ErrMessageNotHandled)
	}
	return f.FileID(), nil
}

// LastFile returns the most recent resolved file the user uploaded.
func (s *Session) LastFile() (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := s.transcript.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		f, ok := messages[i].File()
		if ok && messages[i].Sender == model.SenderUser && f.UploadState == model.UploadStateDone {
			return messages[i], true
		}
	}
	return model.Message{}, false
}

func (s *Session) HandleGesture(ctx context.Context, ev model.GestureEvent) (model.RecordingState, error) {
	if s.voice == nil {
		return model.RecordingIdle, fmt.Errorf("recorder: %w", ErrNotConfigured)
	}
	s.touch()
	return s.voice.HandleGesture(ctx, ev)
}

// Speak returns a link to text read aloud with voice.
func (s *Session) Speak(ctx context.Context, text, voice string) (string, error) {
	if s.deps.Backend == nil {
		return "", fmt.Errorf("file backend: %w", ErrNotConfigured)
	}
	s.touch()
	return s.deps.Backend.SynthesizeSpeech(ctx, text, voice)
}

func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Messages()
}

// Reset starts the conversation over with a fresh greeting.
func (s *Session) Reset() {
	s.reset()
}

func (s *Session) reset() {
	s.mu.Lock()
	id, createdAt := s.ids.Next()
	greeting := model.Message{
		ID:        id,
		CreatedAt: createdAt,
		Sender:    model.SenderAssistant,
		Text:      TextGreeting.Text(s.opts.Language),
	}
	s.transcript = model.NewTranscript(greeting)
	s.lastActive = time.Now()
	s.emitLocked(model.Event{Kind: model.EventAppended, Message: &greeting})
}

// Subscribe registers fn for session events and returns a function that
// removes it. fn runs synchronously, must not block and must not call back
// into the session.
func (s *Session) Subscribe(fn func(model.Event)) func() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	return s.addListenerLocked(fn)
}

// SubscribeWithSnapshot hands snapshot the current transcript and then
// registers fn. Every change after the snapshot reaches fn and none before it
// does. Neither callback may call back into the session.
func (s *Session) SubscribeWithSnapshot(snapshot func([]model.Message), fn func(model.Event)) func() {
	s.mu.Lock()
	messages := s.transcript.Messages()
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	snapshot(messages)
	return s.addListenerLocked(fn)
}

func (s *Session) addListenerLocked(fn func(model.Event)) func() {
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.emitMu.Lock()
		defer s.emitMu.Unlock()
		delete(s.listeners, id)
	}
}

// Post appends a new message and notifies listeners.
func (s *Session) Post(sender model.Sender, text string, media model.Media) model.Message {
	s.mu.Lock()
	id, createdAt := s.ids.Next()
	msg := model.Message{ID: id, CreatedAt: createdAt, Sender: sender, Text: text, Media: media}
	s.transcript = s.transcript.Append(msg)
	s.lastActive = time.Now()
	s.emitLocked(model.Event{Kind: model.EventAppended, Message: &msg})
	return msg
}

func (s *Session) Remove(id int64) bool {
	s.mu.Lock()
	next, ok := s.transcript.RemoveByID(id)
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.transcript = next
	s.emitLocked(model.Event{Kind: model.EventRemoved, MessageID: id})
	return true
}

func (s *Session) Update(id int64, patch func(*model.Message)) bool {
	s.mu.Lock()
	next, ok := s.transcript.UpdateByID(id, patch)
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.transcript = next
	updated, _ := next.Find(id)
	s.emitLocked(model.Event{Kind: model.EventUpdated, Message: &updated, MessageID: id})
	return true
}

func (s *Session) FindFile(fileID string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.FindFile(fileID)
}

func (s *Session) Notify(notice string) {
	s.mu.Lock()
	s.emitLocked(model.Event{Kind: model.EventNotice, Notice: notice})
}

func (s *Session) ShowRecording(status model.RecordingStatus) {
	s.mu.Lock()
	s.emitLocked(model.Event{Kind: model.EventRecording, Recording: &status})
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

func (s *Session) setTyping(on bool) {
	s.mu.Lock()
	was := s.typing > 0
	if on {
		s.typing++
	} else if s.typing > 0 {
		s.typing--
	}
	now := s.typing > 0
	if was == now {
		s.mu.Unlock()
		return
	}
	s.emitLocked(model.Event{Kind: model.EventTyping, Typing: now})
}

// emitLocked must be called with s.mu held and releases it. Listeners run
// after the transcript lock is dropped but in the order of the mutations.
func (s *Session) emitLocked(ev model.Event) {
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	for _, fn := range s.listeners {
		fn(ev)
	}
}

type SessionUsecaseDeps struct {
	Session SessionDeps
	Logger  *log.Logger
}

// SessionUsecase keeps the live sessions and drops the ones that went idle.
type SessionUsecase struct {
	SessionUsecaseDeps
	cfg         config.Session
	recorderCfg config.Recorder
	storageCfg  config.Storage

	mu       sync.Mutex
	sessions map[string]*Session
	onExpire func(*Session)
}

func NewSessionUsecase(deps SessionUsecaseDeps, cfg config.Session, recorderCfg config.Recorder, storageCfg config.Storage) *SessionUsecase {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	if deps.Session.Logger == nil {
		deps.Session.Logger = deps.Logger
	}
	return &SessionUsecase{
		SessionUsecaseDeps: deps,
		cfg:                cfg,
		recorderCfg:        recorderCfg,
		storageCfg:         storageCfg,
		sessions:           make(map[string]*Session),
	}
}

// OnExpire sets a callback run after an idle session has been closed.
func (u *SessionUsecase) OnExpire(fn func(*Session)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onExpire = fn
}

func (u *SessionUsecase) DefaultOptions() SessionOptions {
	return SessionOptions{Language: local.ParseLanguage(u.cfg.Locale)}
}

// Create opens a session under a new random id.
func (u *SessionUsecase) Create(opts SessionOptions) *Session {
	return u.GetOrCreate(uuid.NewString(), opts)
}

func (u *SessionUsecase) GetOrCreate(key string, opts SessionOptions) *Session {
	u.mu.Lock()
	defer u.mu.Unlock()
	if s, ok := u.sessions[key]; ok {
		return s
	}
	if opts.Language == "" {
		opts.Language = local.ParseLanguage(u.cfg.Locale)
	}
	s := newSession(key, u.Session, opts, u.recorderCfg, u.storageCfg)
	u.sessions[key] = s
	u.Logger.Debug("session created", "session", key)
	return s
}

func (u *SessionUsecase) Get(key string) (*Session, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	s, ok := u.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return s, nil
}

func (u *SessionUsecase) Delete(key string) error {
	u.mu.Lock()
	s, ok := u.sessions[key]
	delete(u.sessions, key)
	u.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	s.Close()
	return nil
}

// ReapIdle closes every session inactive for longer than the idle timeout.
func (u *SessionUsecase) ReapIdle(now time.Time) int {
	if u.cfg.IdleTimeout <= 0 {
		return 0
	}
	u.mu.Lock()
	expired := make([]*Session, 0)
	for key, s := range u.sessions {
		if s.LastActive().Add(u.cfg.IdleTimeout).Before(now) {
			expired = append(expired, s)
			delete(u.sessions, key)
		}
	}
	onExpire := u.onExpire
	u.mu.Unlock()

	for _, s := range expired {
		s.Close()
		u.Logger.Info("session expired", "session", s.ID)
		if onExpire != nil {
			onExpire(s)
		}
	}
	return len(expired)
}

// RunReaper calls ReapIdle periodically until ctx is done.
func (u *SessionUsecase) RunReaper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			u.ReapIdle(now)
		}
	}
}

// CloseAll closes every session, waiting for their background work.
func (u *SessionUsecase) CloseAll() {
	u.mu.Lock()
	sessions := make([]*Session, 0, len(u.sessions))
	for key, s := range u.sessions {
		sessions = append(sessions, s)
		delete(u.sessions, key)
	}
	u.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
