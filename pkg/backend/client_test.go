package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := NewClient(server.URL + "/")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(""); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("NewClient(\"\") error = %v, want ErrEmptyURL", err)
	}
}

func TestUploadFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/file" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile() error = %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "hello" {
			t.Errorf("file body = %q", data)
		}
		if header.Filename != "essay.txt" {
			t.Errorf("filename = %q", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "text/plain" {
			t.Errorf("part content type = %q", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://files.test/u/1-essay.txt","fileType":"text/plain","correctedUrl":"https://files.test/u/1-fixed.txt","text":"2 errors"}`))
	})

	res, err := c.UploadFile(context.Background(), "essay.txt", "text/plain", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if res.URL != "https://files.test/u/1-essay.txt" || res.CorrectedURL != "https://files.test/u/1-fixed.txt" || res.Text != "2 errors" {
		t.Errorf("UploadFile() = %+v", res)
	}
}

func TestPerformAction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/file/action" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.FileID != "1-essay.txt" || req.Action != "analyze" || req.Prompt != "count verbs" {
			t.Errorf("request = %+v", req)
		}
		_, _ = w.Write([]byte(`{"analysis":"12 verbs"}`))
	})

	res, err := c.PerformAction(context.Background(), ActionRequest{FileID: "1-essay.txt", Action: "analyze", Prompt: "count verbs"})
	if err != nil {
		t.Fatalf("PerformAction() error = %v", err)
	}
	if res.Analysis != "12 verbs" {
		t.Errorf("Analysis = %q", res.Analysis)
	}
}

func TestAPIErrorDetail(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantDetail string
	}{
		{"details wins", `{"details":"file too large","error":"bad request"}`, "file too large"},
		{"error only", `{"error":"bad request"}`, "bad request"},
		{"not json", `oops`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.PerformAction(context.Background(), ActionRequest{FileID: "x", Action: "fix"})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.StatusCode != http.StatusBadRequest {
				t.Errorf("StatusCode = %d", apiErr.StatusCode)
			}
			if got := apiErr.Detail(); got != tt.wantDetail {
				t.Errorf("Detail() = %q, want %q", got, tt.wantDetail)
			}
		})
	}
}

func TestSynthesizeSpeech(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req SpeechRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Voice != "nova" {
			t.Errorf("voice = %q", req.Voice)
		}
		_, _ = w.Write([]byte(`{"url":"https://files.test/tts/1.mp3"}`))
	})

	res, err := c.SynthesizeSpeech(context.Background(), SpeechRequest{Text: "Привет", Voice: "nova"})
	if err != nil {
		t.Fatalf("SynthesizeSpeech() error = %v", err)
	}
	if res.URL != "https://files.test/tts/1.mp3" {
		t.Errorf("URL = %q", res.URL)
	}
}

func TestMalformedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})
	_, err := c.SynthesizeSpeech(context.Background(), SpeechRequest{Text: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Error("malformed body must not be reported as APIError")
	}
}

func TestUploadFileWithoutURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	res, err := c.UploadFile(context.Background(), "essay.txt", "text/plain", strings.NewReader("hello"))
	if !errors.Is(err, ErrMissingFileURL) {
		t.Fatalf("UploadFile() = %+v, %v, want ErrMissingFileURL", res, err)
	}
}

func TestWithTimeoutCopiesSharedClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c, err := NewClient("https://backend.test", WithHTTPClient(shared), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if shared.Timeout != time.Minute {
		t.Errorf("shared client timeout = %v, want unchanged", shared.Timeout)
	}
	if c.httpClient.Timeout != 5*time.Second {
		t.Errorf("client timeout = %v, want 5s", c.httpClient.Timeout)
	}

	c, err = NewClient("https://backend.test", WithHTTPClient(nil), WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.httpClient == nil || c.httpClient.Timeout != time.Second {
		t.Errorf("client = %+v, want a fresh client with a 1s timeout", c.httpClient)
	}
}
