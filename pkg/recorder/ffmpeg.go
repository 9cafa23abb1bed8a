package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
)

// Status is what a stopped recording reports. Duration is zero when the
// recorder cannot tell and the file has to be probed.
type Status struct {
	URI      string
	Duration time.Duration
}

type FFmpegOptions struct {
	InputFormat string
	InputDevice string
	Dir         string
}

// FFmpeg captures microphone audio through an ffmpeg child process. Only one
// capture runs at a time.
type FFmpeg struct {
	opts FFmpegOptions

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	path  string
}

func NewFFmpeg(opts FFmpegOptions) *FFmpeg {
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	return &FFmpeg{opts: opts}
}

// RequestPermission reports whether capture is possible on this host.
func (f *FFmpeg) RequestPermission(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return false, fmt.Errorf("ffmpeg not found: %w", err)
	}
	return true, nil
}

func (f *FFmpeg) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd != nil {
		return ErrAlreadyRecording
	}

	if err := os.MkdirAll(f.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create recording dir: %w", err)
	}
	path := filepath.Join(f.opts.Dir, fmt.Sprintf("recording-%d.m4a", time.Now().UnixNano()))

	cmd := exec.Command("ffmpeg", CaptureArgs(f.opts.InputFormat, f.opts.InputDevice, path)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdin: %w", err)
	}
	if err = cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	f.cmd = cmd
	f.stdin = stdin
	f.path = path
	return nil
}

// Stop asks ffmpeg to finish the file and waits for it to exit.
func (f *FFmpeg) Stop(ctx context.Context) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd == nil {
		return Status{}, ErrNotRecording
	}
	cmd, stdin, path := f.cmd, f.stdin, f.path
	f.reset()

	_, _ = io.WriteString(stdin, "q")
	_ = stdin.Close()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			return Status{}, fmt.Errorf("ffmpeg exited with error: %w", err)
		}
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return Status{}, ctx.Err()
	}
	return Status{URI: path}, nil
}

// Cancel kills the capture and deletes the partial file.
func (f *FFmpeg) Cancel(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd == nil {
		return nil
	}
	cmd, path := f.cmd, f.path
	f.reset()

	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove canceled recording: %w", err)
	}
	return nil
}

// Discard deletes a finished recording that will not be sent.
func (f *FFmpeg) Discard(_ context.Context, uri string) error {
	if err := os.Remove(uri); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove discarded recording: %w", err)
	}
	return nil
}

func (f *FFmpeg) reset() {
	f.cmd = nil
	f.stdin = nil
	f.path = ""
}

// CaptureArgs builds the ffmpeg command line for a mono AAC voice note.
func CaptureArgs(inputFormat, inputDevice, output string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", inputFormat,
		"-i", inputDevice,
		"-ac", "1",
		"-ar", "44100",
		"-codec:a", "aac",
		output,
	}
}

// FFprobe reads media durations with ffprobe.
type FFprobe struct{}

func (FFprobe) ProbeDuration(ctx context.Context, uri string) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		uri,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("failed to get duration: %w", err)
	}
	return ParseDuration(string(out))
}

// ParseDuration converts ffprobe's seconds output to a duration.
func ParseDuration(s string) (time.Duration, error) {
	sec, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}
