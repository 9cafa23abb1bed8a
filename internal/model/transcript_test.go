package model

import (
	"testing"
	"time"
)

func ids(t Transcript) []int64 {
	out := make([]int64, 0, t.Len())
	for _, m := range t.Messages() {
		out = append(out, m.ID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTranscriptAppendPreservesOrder(t *testing.T) {
	now := time.Now()
	a := Message{ID: 30, CreatedAt: now, Text: "A"}
	b := Message{ID: 10, CreatedAt: now.Add(-time.Hour), Text: "B"}
	c := Message{ID: 20, CreatedAt: now.Add(-2 * time.Hour), Text: "C"}

	tr := NewTranscript().Append(a, b).Append(c)

	if got, want := ids(tr), []int64{30, 10, 20}; !equalIDs(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestTranscriptIsValue(t *testing.T) {
	base := NewTranscript(Message{ID: 1})
	next := base.Append(Message{ID: 2})

	if base.Len() != 1 {
		t.Errorf("base was mutated: len = %d", base.Len())
	}
	if next.Len() != 2 {
		t.Errorf("next len = %d, want 2", next.Len())
	}

	msgs := next.Messages()
	msgs[0].Text = "changed"
	if m, _ := next.Find(1); m.Text != "" {
		t.Error("Messages() must return a copy")
	}
}

func TestTranscriptRemoveByID(t *testing.T) {
	tr := NewTranscript(Message{ID: 1}, Message{ID: 2}, Message{ID: 2}, Message{ID: 3})

	next, ok := tr.RemoveByID(2)
	if !ok {
		t.Fatal("RemoveByID(2) reported missing")
	}
	if got, want := ids(next), []int64{1, 2, 3}; !equalIDs(got, want) {
		t.Errorf("after remove = %v, want %v", got, want)
	}
	if tr.Len() != 4 {
		t.Error("original transcript was mutated")
	}

	if _, ok := next.RemoveByID(42); ok {
		t.Error("RemoveByID(42) should report missing")
	}
}

func TestTranscriptUpdateByID(t *testing.T) {
	placeholder := Message{
		ID:     7,
		Sender: SenderUser,
		Media:  FileMedia{Name: "essay.docx", UploadState: UploadStateUploading},
	}
	tr := NewTranscript(placeholder)

	next, ok := tr.UpdateByID(7, func(m *Message) {
		f, _ := m.File()
		f.UploadState = UploadStateDone
		m.Media = f
		m.ID = 99
	})
	if !ok {
		t.Fatal("UpdateByID(7) reported missing")
	}

	m, found := next.Find(7)
	if !found {
		t.Fatal("patch must not change the id")
	}
	if f, _ := m.File(); f.UploadState != UploadStateDone {
		t.Errorf("UploadState = %q, want done", f.UploadState)
	}
	if old, _ := tr.Find(7); old.Media.(FileMedia).UploadState != UploadStateUploading {
		t.Error("original transcript was mutated")
	}
}

func TestTranscriptFindFile(t *testing.T) {
	tr := NewTranscript(
		Message{ID: 1, Media: FileMedia{URL: "https://files.test/u/abc.txt", UploadState: UploadStateUploading}},
		Message{ID: 2, Media: FileMedia{URL: "https://files.test/u/abc.txt", UploadState: UploadStateDone}},
		Message{ID: 3, Text: "hello"},
	)

	m, ok := tr.FindFile("abc.txt")
	if !ok || m.ID != 2 {
		t.Errorf("FindFile = %v, %v; want message 2", m.ID, ok)
	}
	if _, ok := tr.FindFile("missing"); ok {
		t.Error("FindFile(missing) should fail")
	}
}

func TestFileMediaFileID(t *testing.T) {
	tests := map[string]string{
		"https://files.test/uploads/1700-essay.docx":         "1700-essay.docx",
		"https://files.test/uploads/1700-essay.docx?sig=abc": "1700-essay.docx",
		"https://files.test/uploads/dir/":                    "dir",
		"plain":                                              "plain",
	}
	for url, want := range tests {
		if got := (FileMedia{URL: url}).FileID(); got != want {
			t.Errorf("FileID(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestIDSourceMonotonic(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	src := NewIDSource(func() time.Time { return fixed })

	first, _ := src.Next()
	second, _ := src.Next()
	third, _ := src.Next()

	if first != fixed.UnixMilli() {
		t.Errorf("first id = %d, want %d", first, fixed.UnixMilli())
	}
	if !(first < second && second < third) {
		t.Errorf("ids not increasing: %d %d %d", first, second, third)
	}
}
