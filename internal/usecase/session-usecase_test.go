package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/iamvkosarev/lingro/config"
	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/pkg/local"
)

type fakeChat struct {
	mu      sync.Mutex
	reply   string
	err     error
	history []model.Message
	delay   map[string]time.Duration
}

func (c *fakeChat) SendChatMessage(ctx context.Context, history []model.Message, text string) (ChatReply, error) {
	c.mu.Lock()
	c.history = history
	delay := c.delay[text]
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if c.err != nil {
		return ChatReply{}, c.err
	}
	if c.reply == "" {
		return ChatReply{Text: "re: " + text}, nil
	}
	return ChatReply{Text: c.reply}, nil
}

func newTestSessions(chat ChatDispatcher, provider ImageProvider) *SessionUsecase {
	logger := log.New(io.Discard)
	var images *ImageUsecase
	if provider != nil {
		images = NewImageUsecase(ImageUsecaseDeps{Provider: provider, Logger: logger}, config.Search{MaxResults: 3})
	}
	return NewSessionUsecase(
		SessionUsecaseDeps{
			Session: SessionDeps{Chat: chat, Images: images, Logger: logger},
			Logger:  logger,
		},
		config.Session{IdleTimeout: 30 * time.Minute, Locale: "ru"},
		config.Recorder{TickInterval: 300 * time.Millisecond},
		config.Storage{},
	)
}

func texts(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func TestSessionGreeting(t *testing.T) {
	sessions := newTestSessions(&fakeChat{}, nil)

	ru := sessions.GetOrCreate("a", SessionOptions{})
	en := sessions.GetOrCreate("b", SessionOptions{Language: local.Eng})

	if msgs := ru.Messages(); len(msgs) != 1 || msgs[0].Text != "Привет! Я Lingro, чем могу помочь?" || msgs[0].Sender != model.SenderAssistant {
		t.Errorf("ru greeting = %+v", msgs)
	}
	if msgs := en.Messages(); len(msgs) != 1 || msgs[0].Text != "Hi! I'm Lingro, how can I help?" {
		t.Errorf("en greeting = %+v", msgs)
	}
}

func TestSessionSendText(t *testing.T) {
	chat := &fakeChat{reply: "Всё хорошо!"}
	s := newTestSessions(chat, nil).GetOrCreate("a", SessionOptions{})

	var events []model.Event
	s.Subscribe(func(ev model.Event) { events = append(events, ev) })

	if err := s.SendText(context.Background(), "  Как дела?  "); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}

	got := texts(s.Messages())
	want := []string{"Привет! Я Lingro, чем могу помочь?", "Как дела?", "Всё хорошо!"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("transcript = %q, want %q", got, want)
	}
	if len(chat.history) != 1 {
		t.Errorf("history sent to chat = %+v, want greeting only", chat.history)
	}

	kinds := make([]model.EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	wantKinds := []model.EventKind{model.EventAppended, model.EventTyping, model.EventAppended, model.EventTyping}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("events = %v, want %v", kinds, wantKinds)
	}
	for i := range wantKinds {
		if kinds[i] != wantKinds[i] {
			t.Errorf("event %d = %s, want %s", i, kinds[i], wantKinds[i])
		}
	}
	if !events[1].Typing || events[3].Typing {
		t.Error("typing must switch on and then off")
	}
}

func TestSessionSendTextFailureAppendsOneError(t *testing.T) {
	chat := &fakeChat{err: ErrNoModelResponded}
	s := newTestSessions(chat, nil).GetOrCreate("a", SessionOptions{})

	if err := s.SendText(context.Background(), "hi"); !errors.Is(err, ErrNoModelResponded) {
		t.Fatalf("SendText() error = %v", err)
	}
	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("messages = %q", texts(msgs))
	}
	if msgs[2].Sender != model.SenderAssistant || msgs[2].Text != "Ошибка при запросе к OpenAI. Пожалуйста, попробуйте позже." {
		t.Errorf("error message = %+v", msgs[2])
	}
}

func TestSessionSendTextEmpty(t *testing.T) {
	s := newTestSessions(&fakeChat{}, nil).GetOrCreate("a", SessionOptions{})
	if err := s.SendText(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("error = %v, want ErrEmptyMessage", err)
	}
	if len(s.Messages()) != 1 {
		t.Error("empty text must not be appended")
	}
}

func TestSessionImageRequest(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		urls     []string
		check    func(t *testing.T, msgs []model.Message)
		wantTerm string
	}{
		{
			name:     "results",
			text:     "найди фото кота",
			urls:     []string{"https://a.test/1.jpg", "https://a.test/2.jpg"},
			wantTerm: "кота",
			check: func(t *testing.T, msgs []model.Message) {
				if len(msgs) != 4 {
					t.Fatalf("messages = %+v", msgs)
				}
				for i, want := range []string{"https://a.test/1.jpg", "https://a.test/2.jpg"} {
					img, ok := msgs[2+i].Image()
					if !ok || img.URL != want || msgs[2+i].Text != "" || msgs[2+i].Sender != model.SenderAssistant {
						t.Errorf("image message %d = %+v", i, msgs[2+i])
					}
				}
			},
		},
		{
			name:     "nothing found",
			text:     "покажи картинки жирафа",
			wantTerm: "жирафа",
			check: func(t *testing.T, msgs []model.Message) {
				if len(msgs) != 3 || !strings.Contains(msgs[2].Text, "«жирафа»") {
					t.Errorf("messages = %q", texts(msgs))
				}
			},
		},
		{
			name: "term too short",
			text: "фото ёж",
			check: func(t *testing.T, msgs []model.Message) {
				if len(msgs) != 3 || msgs[2].Text != "Пожалуйста, уточните, какое изображение вы ищете." {
					t.Errorf("messages = %q", texts(msgs))
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &recordingProvider{urls: tt.urls}
			chat := &fakeChat{}
			s := newTestSessions(chat, provider).GetOrCreate("a", SessionOptions{})

			if err := s.SendText(context.Background(), tt.text); err != nil {
				t.Fatalf("SendText() error = %v", err)
			}
			tt.check(t, s.Messages())
			if provider.query != tt.wantTerm {
				t.Errorf("search query = %q, want %q", provider.query, tt.wantTerm)
			}
			if chat.history != nil {
				t.Error("image requests must not reach the chat model")
			}
		})
	}
}

type recordingProvider struct {
	urls  []string
	query string
}

func (p *recordingProvider) SearchImages(_ context.Context, query string, _ int) ([]string, error) {
	p.query = query
	return p.urls, nil
}

func TestSessionAppendsInCompletionOrder(t *testing.T) {
	chat := &fakeChat{delay: map[string]time.Duration{"slow": 50 * time.Millisecond}}
	s := newTestSessions(chat, nil).GetOrCreate("a", SessionOptions{})

	s.Go("slow", func(ctx context.Context) error { return s.SendText(ctx, "slow") })
	time.Sleep(10 * time.Millisecond)
	s.Go("fast", func(ctx context.Context) error { return s.SendText(ctx, "fast") })
	s.Wait()

	got := texts(s.Messages())
	if len(got) != 5 {
		t.Fatalf("transcript = %q", got)
	}
	if got[3] != "re: fast" || got[4] != "re: slow" {
		t.Errorf("replies must land in completion order, got %q", got)
	}
}

func TestSessionPickImageAndVoiceNote(t *testing.T) {
	s := newTestSessions(&fakeChat{}, nil).GetOrCreate("a", SessionOptions{})

	img := s.PickImage("file:///cat.jpg")
	note := s.AppendVoiceNote("https://tg.test/voice.oga", 65*time.Second)

	if got, _ := img.Image(); got.URL != "file:///cat.jpg" || img.Sender != model.SenderUser {
		t.Errorf("image message = %+v", img)
	}
	if audio, _ := note.Audio(); audio.DurationLabel != "1:05" || len(audio.Waveform) != WaveformSamples {
		t.Errorf("voice note = %+v", note)
	}
	if !(img.ID < note.ID) {
		t.Errorf("ids must increase: %d, %d", img.ID, note.ID)
	}
}

func TestSessionReset(t *testing.T) {
	s := newTestSessions(&fakeChat{}, nil).GetOrCreate("a", SessionOptions{})
	_ = s.SendText(context.Background(), "hi")
	s.Reset()
	if msgs := s.Messages(); len(msgs) != 1 || msgs[0].Sender != model.SenderAssistant {
		t.Errorf("after reset = %q", texts(msgs))
	}
}

func TestSessionRegistry(t *testing.T) {
	sessions := newTestSessions(&fakeChat{}, nil)

	a := sessions.GetOrCreate("tg:1", SessionOptions{})
	if again := sessions.GetOrCreate("tg:1", SessionOptions{}); again != a {
		t.Error("GetOrCreate must return the existing session")
	}
	created := sessions.Create(SessionOptions{Owner: "user-1"})
	if got, err := sessions.Get(created.ID); err != nil || got != created {
		t.Errorf("Get(%s) = %v, %v", created.ID, got, err)
	}

	if err := sessions.Delete(created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := sessions.Get(created.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after delete error = %v", err)
	}
}

func TestSessionDeleteReleasesRecording(t *testing.T) {
	rec := &fakeRecorder{granted: true}
	logger := log.New(io.Discard)
	sessions := NewSessionUsecase(
		SessionUsecaseDeps{
			Session: SessionDeps{Chat: &fakeChat{}, Recorder: rec, Logger: logger},
			Logger:  logger,
		},
		config.Session{IdleTimeout: 30 * time.Minute, Locale: "ru"},
		config.Recorder{TickInterval: 5 * time.Millisecond},
		config.Storage{},
	)
	s := sessions.Create(SessionOptions{})

	var ticks atomic.Int32
	s.Subscribe(func(ev model.Event) {
		if ev.Kind == model.EventRecording {
			ticks.Add(1)
		}
	})
	if _, err := s.HandleGesture(context.Background(), model.GestureEvent{Kind: model.GestureStart}); err != nil {
		t.Fatalf("HandleGesture(start) error = %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for ticks.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := sessions.Delete(s.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if rec.cancelled != 1 {
		t.Errorf("cancelled = %d, want 1", rec.cancelled)
	}
	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if got := ticks.Load(); got != after {
		t.Errorf("recording events after delete: %d, want %d", got, after)
	}
}

func TestSessionSubscribeWithSnapshotSeesEveryMessageOnce(t *testing.T) {
	sessions := newTestSessions(&fakeChat{}, nil)
	s := sessions.Create(SessionOptions{})

	var mu sync.Mutex
	seen := make(map[int64]int)
	record := func(id int64) {
		mu.Lock()
		seen[id]++
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Post(model.SenderAssistant, "tick", nil)
		}
	}()
	unsubscribe := s.SubscribeWithSnapshot(
		func(messages []model.Message) {
			for _, m := range messages {
				record(m.ID)
			}
		},
		func(ev model.Event) {
			if ev.Kind == model.EventAppended {
				record(ev.Message.ID)
			}
		},
	)
	defer unsubscribe()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	msgs := s.Messages()
	if len(seen) != len(msgs) {
		t.Fatalf("seen %d messages, transcript has %d", len(seen), len(msgs))
	}
	for _, m := range msgs {
		if seen[m.ID] != 1 {
			t.Errorf("message %d seen %d times, want 1", m.ID, seen[m.ID])
		}
	}
}

func TestSessionReapIdle(t *testing.T) {
	sessions := newTestSessions(&fakeChat{}, nil)
	sessions.GetOrCreate("tg:1", SessionOptions{})

	var expired []string
	sessions.OnExpire(func(s *Session) { expired = append(expired, s.ID) })

	if n := sessions.ReapIdle(time.Now()); n != 0 {
		t.Errorf("fresh session reaped")
	}
	if n := sessions.ReapIdle(time.Now().Add(31 * time.Minute)); n != 1 {
		t.Errorf("ReapIdle() = %d, want 1", n)
	}
	if len(expired) != 1 || expired[0] != "tg:1" {
		t.Errorf("expired = %v", expired)
	}
	if _, err := sessions.Get("tg:1"); !errors.Is(err, ErrSessionNotFound) {
		t.Error("expired session still registered")
	}
}
