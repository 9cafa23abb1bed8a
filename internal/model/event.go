package model

type EventKind string

const (
	EventAppended  = EventKind("appended")
	EventRemoved   = EventKind("removed")
	EventUpdated   = EventKind("updated")
	EventTyping    = EventKind("typing")
	EventNotice    = EventKind("notice")
	EventRecording = EventKind("recording")
)

// Event tells a front-end what changed in a chat session.
type Event struct {
	Kind      EventKind
	Message   *Message
	MessageID int64
	Typing    bool
	Notice    string
	Recording *RecordingStatus
}

// RecordingStatus is what a front-end shows while a voice capture is running.
type RecordingStatus struct {
	State         RecordingState
	DurationLabel string
}
