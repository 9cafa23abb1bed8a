package model

import (
	"fmt"
	"time"
)

type RecordingState string

const (
	RecordingIdle     = RecordingState("idle")
	RecordingActive   = RecordingState("recording")
	RecordingCanceled = RecordingState("canceled")
	RecordingSent     = RecordingState("sent")
)

type GestureKind string

const (
	GestureStart   = GestureKind("start")
	GestureMove    = GestureKind("move")
	GestureRelease = GestureKind("release")
)

// GestureEvent is a device pointer event reduced to what the recorder needs.
// DX and DY are the cumulative offsets from the gesture origin in logical px;
// negative DX is a drag to the left, negative DY a drag upwards.
type GestureEvent struct {
	Kind GestureKind
	DX   float64
	DY   float64
}

func ParseGestureKind(s string) (GestureKind, error) {
	switch k := GestureKind(s); k {
	case GestureStart, GestureMove, GestureRelease:
		return k, nil
	default:
		return "", fmt.Errorf("unknown gesture %q", s)
	}
}

// Effect is the side effect a transition asks the capture driver to perform.
type Effect int

const (
	EffectNone = Effect(iota)
	EffectStartCapture
	EffectCancelCapture
	EffectFinishCapture
)

const (
	CancelDragThreshold = 50.0
	SendDragThreshold   = 50.0
)

// RecordingSession is the in-flight voice capture owned by the capture driver.
type RecordingSession struct {
	State     RecordingState
	StartedAt time.Time
	URI       string
}

// Transition is the gesture state machine. Terminal states re-enter recording
// on the next start; a start while already recording is ignored.
func Transition(state RecordingState, ev GestureEvent) (RecordingState, Effect) {
	switch ev.Kind {
	case GestureStart:
		if state == RecordingActive {
			return state, EffectNone
		}
		return RecordingActive, EffectStartCapture
	case GestureMove:
		if state != RecordingActive {
			return state, EffectNone
		}
		if ev.DX < -CancelDragThreshold {
			return RecordingCanceled, EffectCancelCapture
		}
		if ev.DY < -SendDragThreshold {
			return RecordingSent, EffectFinishCapture
		}
		return state, EffectNone
	case GestureRelease:
		if state != RecordingActive {
			return state, EffectNone
		}
		return RecordingSent, EffectFinishCapture
	default:
		return state, EffectNone
	}
}

// FormatDuration renders d as M:SS, truncating to whole seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
