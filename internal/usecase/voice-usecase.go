package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/pkg/local"
	"github.com/iamvkosarev/lingro/pkg/recorder"
	"github.com/sourcegraph/conc"
)

const (
	MinGestureDuration = 300 * time.Millisecond
	MinAudioDuration   = 700 * time.Millisecond
	WaveformSamples    = 32
)

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrStartRecording   = errors.New("failed to start recording")
	ErrFinishRecording  = errors.New("failed to finish recording")
)

type Recorder interface {
	RequestPermission(ctx context.Context) (bool, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) (recorder.Status, error)
	Cancel(ctx context.Context) error
	Discard(ctx context.Context, uri string) error
}

type DurationProber interface {
	ProbeDuration(ctx context.Context, uri string) (time.Duration, error)
}

// RecordingArchive copies a finished recording somewhere durable and returns
// the URI to use instead of the local one.
type RecordingArchive interface {
	ArchiveFile(ctx context.Context, localPath string, expiry time.Duration) (string, error)
}

type VoiceTranscript interface {
	Post(sender model.Sender, text string, media model.Media) model.Message
	Notify(notice string)
	ShowRecording(status model.RecordingStatus)
}

type VoiceUsecaseDeps struct {
	Recorder   Recorder
	Prober     DurationProber
	Archive    RecordingArchive
	Transcript VoiceTranscript
	Logger     *log.Logger
}

type VoiceOptions struct {
	TickInterval  time.Duration
	ArchiveExpiry time.Duration
	Now           func() time.Time
}

// VoiceUsecase runs the press-and-hold recorder of one chat session.
type VoiceUsecase struct {
	VoiceUsecaseDeps
	opts     VoiceOptions
	language local.Language

	mu       sync.Mutex
	session  model.RecordingSession
	closed   bool
	stopTick chan struct{}
	ticker   *conc.WaitGroup
}

func NewVoiceUsecase(deps VoiceUsecaseDeps, opts VoiceOptions, language local.Language) *VoiceUsecase {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 300 * time.Millisecond
	}
	return &VoiceUsecase{
		VoiceUsecaseDeps: deps,
		opts:             opts,
		language:         language,
		session:          model.RecordingSession{State: model.RecordingIdle},
	}
}

func (v *VoiceUsecase) State() model.RecordingState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.session.State
}

// HandleGesture feeds one pointer event into the recorder state machine and
// performs the capture side effect it asks for.
func (v *VoiceUsecase) HandleGesture(ctx context.Context, ev model.GestureEvent) (model.RecordingState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return v.session.State, ErrSessionClosed
	}

	next, effect := model.Transition(v.session.State, ev)
	var err error
	switch effect {
	case model.EffectStartCapture:
		err = v.start(ctx)
	case model.EffectCancelCapture:
		v.stopTicker()
		if cancelErr := v.Recorder.Cancel(ctx); cancelErr != nil {
			v.Logger.Warn("failed to cancel recording", "error", cancelErr)
		}
		v.session = model.RecordingSession{State: next}
		v.Transcript.ShowRecording(model.RecordingStatus{State: next})
	case model.EffectFinishCapture:
		v.session.State = next
		err = v.finish(ctx)
	default:
		v.session.State = next
	}
	return v.session.State, err
}

func (v *VoiceUsecase) start(ctx context.Context) error {
	granted, err := v.Recorder.RequestPermission(ctx)
	if err != nil {
		return v.fail(TextRecordingPermission, fmt.Errorf("%w: %w", ErrStartRecording, err))
	}
	if !granted {
		return v.fail(TextRecordingPermission, ErrPermissionDenied)
	}
	if err = v.Recorder.Start(ctx); err != nil {
		_ = v.Recorder.Cancel(ctx)
		return v.fail(TextRecordingStartFailed, fmt.Errorf("%w: %w", ErrStartRecording, err))
	}

	startedAt := v.opts.Now()
	v.session = model.RecordingSession{State: model.RecordingActive, StartedAt: startedAt}
	v.Transcript.ShowRecording(model.RecordingStatus{State: model.RecordingActive, DurationLabel: model.FormatDuration(0)})
	v.startTicker(startedAt)
	return nil
}

// finish stops the capture and appends the voice note. Too short gestures
// and recordings are discarded without a message.
func (v *VoiceUsecase) finish(ctx context.Context) error {
	v.stopTicker()
	startedAt := v.session.StartedAt
	state := v.session.State
	defer func() {
		v.Transcript.ShowRecording(model.RecordingStatus{State: v.session.State})
	}()

	if v.opts.Now().Sub(startedAt) < MinGestureDuration {
		if err := v.Recorder.Cancel(ctx); err != nil {
			v.Logger.Warn("failed to cancel short recording", "error", err)
		}
		v.session = model.RecordingSession{State: state}
		return nil
	}

	status, err := v.Recorder.Stop(ctx)
	if err != nil {
		return v.fail(TextRecordingStopFailed, fmt.Errorf("%w: %w", ErrFinishRecording, err))
	}
	v.session = model.RecordingSession{State: state, StartedAt: startedAt, URI: status.URI}
	if status.URI == "" {
		return nil
	}

	duration := status.Duration
	if duration <= 0 && v.Prober != nil {
		if duration, err = v.Prober.ProbeDuration(ctx, status.URI); err != nil {
			v.Logger.Warn("failed to probe recording duration", "uri", status.URI, "error", err)
		}
	}
	if duration < MinAudioDuration {
		v.Logger.Debug("discarding short recording", "duration", duration)
		if err = v.Recorder.Discard(ctx, status.URI); err != nil {
			v.Logger.Warn("failed to remove short recording", "uri", status.URI, "error", err)
		}
		return nil
	}

	uri := status.URI
	if v.Archive != nil {
		archived, err := v.Archive.ArchiveFile(ctx, status.URI, v.opts.ArchiveExpiry)
		if err != nil {
			v.Logger.Warn("failed to archive recording, keeping local file", "uri", status.URI, "error", err)
		} else {
			uri = archived
		}
	}

	v.Transcript.Post(model.SenderUser, "", NewAudioMedia(uri, duration))
	return nil
}

// Close releases a capture still in progress and stops the duration ticker.
// Gestures after Close fail with ErrSessionClosed.
func (v *VoiceUsecase) Close(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.stopTicker()
	if v.session.State == model.RecordingActive {
		if err := v.Recorder.Cancel(ctx); err != nil {
			v.Logger.Warn("failed to cancel recording on close", "error", err)
		}
	}
	v.session = model.RecordingSession{State: model.RecordingIdle}
}

func (v *VoiceUsecase) fail(notice local.TextSet, err error) error {
	v.stopTicker()
	v.session = model.RecordingSession{State: model.RecordingIdle}
	v.Transcript.Notify(notice.Text(v.language))
	return err
}

func (v *VoiceUsecase) startTicker(startedAt time.Time) {
	stop := make(chan struct{})
	v.stopTick = stop
	v.ticker = conc.NewWaitGroup()
	v.ticker.Go(
		func() {
			t := time.NewTicker(v.opts.TickInterval)
			defer t.Stop()
			for {
				select {
				case <-stop:
					return
				case <-t.C:
					v.Transcript.ShowRecording(
						model.RecordingStatus{
							State:         model.RecordingActive,
							DurationLabel: model.FormatDuration(v.opts.Now().Sub(startedAt)),
						},
					)
				}
			}
		},
	)
}

func (v *VoiceUsecase) stopTicker() {
	if v.stopTick == nil {
		return
	}
	close(v.stopTick)
	v.ticker.Wait()
	v.stopTick = nil
	v.ticker = nil
}

// NewAudioMedia builds a voice note with a placeholder waveform.
func NewAudioMedia(uri string, duration time.Duration) model.AudioMedia {
	waveform := make([]int, WaveformSamples)
	for i := range waveform {
		waveform[i] = 8 + rand.IntN(16)
	}
	return model.AudioMedia{
		URI:           uri,
		DurationLabel: model.FormatDuration(duration),
		Waveform:      waveform,
	}
}
