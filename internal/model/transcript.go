package model

import "slices"

// Transcript is an ordered, append-only list of chat messages. It is a value:
// every mutation returns a new Transcript and leaves the receiver untouched.
type Transcript struct {
	messages []Message
}

func NewTranscript(messages ...Message) Transcript {
	return Transcript{messages: slices.Clone(messages)}
}

// Append adds messages to the end in the given order. Ids are not checked
// for uniqueness.
func (t Transcript) Append(messages ...Message) Transcript {
	next := make([]Message, 0, len(t.messages)+len(messages))
	next = append(next, t.messages...)
	next = append(next, messages...)
	return Transcript{messages: next}
}

// RemoveByID removes the first message with the given id.
func (t Transcript) RemoveByID(id int64) (Transcript, bool) {
	i := t.index(id)
	if i < 0 {
		return t, false
	}
	return Transcript{messages: slices.Delete(slices.Clone(t.messages), i, i+1)}, true
}

// UpdateByID applies patch to a copy of the first message with the given id.
// The id itself cannot be changed by the patch.
func (t Transcript) UpdateByID(id int64, patch func(*Message)) (Transcript, bool) {
	i := t.index(id)
	if i < 0 {
		return t, false
	}
	next := slices.Clone(t.messages)
	patch(&next[i])
	next[i].ID = id
	return Transcript{messages: next}, true
}

func (t Transcript) Find(id int64) (Message, bool) {
	i := t.index(id)
	if i < 0 {
		return Message{}, false
	}
	return t.messages[i], true
}

// FindFile returns the most recent resolved file message whose file id matches.
func (t Transcript) FindFile(fileID string) (Message, bool) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		f, ok := t.messages[i].File()
		if ok && f.UploadState == UploadStateDone && f.FileID() == fileID {
			return t.messages[i], true
		}
	}
	return Message{}, false
}

func (t Transcript) Messages() []Message {
	return slices.Clone(t.messages)
}

func (t Transcript) Len() int {
	return len(t.messages)
}

func (t Transcript) index(id int64) int {
	return slices.IndexFunc(t.messages, func(m Message) bool { return m.ID == id })
}
