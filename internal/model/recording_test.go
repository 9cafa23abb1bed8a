package model

import (
	"testing"
	"time"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name       string
		state      RecordingState
		event      GestureEvent
		wantState  RecordingState
		wantEffect Effect
	}{
		{"start from idle", RecordingIdle, GestureEvent{Kind: GestureStart}, RecordingActive, EffectStartCapture},
		{"start from canceled", RecordingCanceled, GestureEvent{Kind: GestureStart}, RecordingActive, EffectStartCapture},
		{"start from sent", RecordingSent, GestureEvent{Kind: GestureStart}, RecordingActive, EffectStartCapture},
		{"start while recording", RecordingActive, GestureEvent{Kind: GestureStart}, RecordingActive, EffectNone},
		{"small drag", RecordingActive, GestureEvent{Kind: GestureMove, DX: -30, DY: -30}, RecordingActive, EffectNone},
		{"drag left cancels", RecordingActive, GestureEvent{Kind: GestureMove, DX: -51}, RecordingCanceled, EffectCancelCapture},
		{"drag left exactly threshold", RecordingActive, GestureEvent{Kind: GestureMove, DX: -50}, RecordingActive, EffectNone},
		{"drag up sends", RecordingActive, GestureEvent{Kind: GestureMove, DY: -80}, RecordingSent, EffectFinishCapture},
		{"cancel wins over send", RecordingActive, GestureEvent{Kind: GestureMove, DX: -60, DY: -60}, RecordingCanceled, EffectCancelCapture},
		{"drag right ignored", RecordingActive, GestureEvent{Kind: GestureMove, DX: 200}, RecordingActive, EffectNone},
		{"move after cancel", RecordingCanceled, GestureEvent{Kind: GestureMove, DY: -80}, RecordingCanceled, EffectNone},
		{"move after send", RecordingSent, GestureEvent{Kind: GestureMove, DX: -80}, RecordingSent, EffectNone},
		{"release while recording", RecordingActive, GestureEvent{Kind: GestureRelease}, RecordingSent, EffectFinishCapture},
		{"release after cancel", RecordingCanceled, GestureEvent{Kind: GestureRelease}, RecordingCanceled, EffectNone},
		{"release after send", RecordingSent, GestureEvent{Kind: GestureRelease}, RecordingSent, EffectNone},
		{"release when idle", RecordingIdle, GestureEvent{Kind: GestureRelease}, RecordingIdle, EffectNone},
		{"unknown event", RecordingActive, GestureEvent{Kind: "tap"}, RecordingActive, EffectNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotState, gotEffect := Transition(tt.state, tt.event)
			if gotState != tt.wantState || gotEffect != tt.wantEffect {
				t.Errorf("Transition() = (%s, %d), want (%s, %d)", gotState, gotEffect, tt.wantState, tt.wantEffect)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{999 * time.Millisecond, "0:00"},
		{5 * time.Second, "0:05"},
		{65 * time.Second, "1:05"},
		{10*time.Minute + 59*time.Second, "10:59"},
		{-time.Second, "0:00"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestParseGestureKind(t *testing.T) {
	for _, s := range []string{"start", "move", "release"} {
		if _, err := ParseGestureKind(s); err != nil {
			t.Errorf("ParseGestureKind(%q) error = %v", s, err)
		}
	}
	if _, err := ParseGestureKind("swipe"); err == nil {
		t.Error("expected error for unknown gesture")
	}
}
