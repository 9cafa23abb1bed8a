package duckduckgo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func newServer(t *testing.T, page string, results string, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("iax") != "images" {
			t.Errorf("token request query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/i.js", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("vqd") != "4-123" || q.Get("l") != "ru-ru" || q.Get("o") != "json" || q.Get("q") != "кот" {
			t.Errorf("image request query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(results))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestSearchImages(t *testing.T) {
	server := newServer(t,
		`<script>var x; vqd='4-123'; </script>`,
		`{"results":[{"image":"https://a.test/1.jpg"},{"image":null},{"image":"https://a.test/3.jpg"},{"image":"https://a.test/4.jpg"}]}`,
		http.StatusOK,
	)
	c := NewClient(WithBaseURL(server.URL))

	got, err := c.SearchImages(context.Background(), "кот", 3)
	if err != nil {
		t.Fatalf("SearchImages() error = %v", err)
	}
	want := []string{"https://a.test/1.jpg", "https://a.test/3.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SearchImages() = %v, want %v", got, want)
	}
}

func TestSearchImagesNoToken(t *testing.T) {
	server := newServer(t, `<html>nothing here</html>`, `{}`, http.StatusOK)
	c := NewClient(WithBaseURL(server.URL))

	if _, err := c.SearchImages(context.Background(), "кот", 3); !errors.Is(err, ErrNoToken) {
		t.Errorf("error = %v, want ErrNoToken", err)
	}
}

func TestSearchImagesFailures(t *testing.T) {
	tests := []struct {
		name    string
		results string
		status  int
	}{
		{"non-2xx", `{"results":[]}`, http.StatusForbidden},
		{"malformed json", `{"results":`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, `vqd="4-123"`, tt.results, tt.status)
			c := NewClient(WithBaseURL(server.URL))
			if _, err := c.SearchImages(context.Background(), "кот", 3); err == nil {
				t.Error("expected error")
			}
		})
	}
}
