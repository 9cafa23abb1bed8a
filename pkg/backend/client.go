package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const DefaultTimeout = 2 * time.Minute

var (
	ErrEmptyURL       = errors.New("backend url is required")
	ErrMissingFileURL = errors.New("upload response has no file url")
)

// Client talks to the file-processing backend: uploads, file actions and
// speech synthesis.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the request timeout on a copy of the current client, so a
// client shared through WithHTTPClient keeps its own timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		client := http.Client{}
		if c.httpClient != nil {
			client = *c.httpClient
		}
		client.Timeout = timeout
		c.httpClient = &client
	}
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, ErrEmptyURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return c, nil
}

type UploadResponse struct {
	URL          string `json:"url"`
	FileName     string `json:"fileName"`
	FileType     string `json:"fileType"`
	CorrectedURL string `json:"correctedUrl"`
	Text         string `json:"text"`
}

type ActionRequest struct {
	FileID string `json:"fileId"`
	Action string `json:"action"`
	Prompt string `json:"prompt,omitempty"`
}

type ActionResponse struct {
	ImageURL      string `json:"imageUrl"`
	CorrectedURL  string `json:"correctedUrl"`
	TranslatedURL string `json:"translatedUrl"`
	Text          string `json:"text"`
	Analysis      string `json:"analysis"`
}

type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type SpeechResponse struct {
	URL string `json:"url"`
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int    `json:"-"`
	Details    string `json:"details"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if msg := e.Detail(); msg != "" {
		return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("backend error (status %d)", e.StatusCode)
}

// Detail is the most specific message the server gave, or "".
func (e *APIError) Detail() string {
	if e.Details != "" {
		return e.Details
	}
	return e.Message
}

// UploadFile sends body as the multipart field "file".
func (c *Client) UploadFile(ctx context.Context, name, mimeType string, body io.Reader) (*UploadResponse, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = io.Copy(part, body); err != nil {
		return nil, fmt.Errorf("failed to copy file to form: %w", err)
	}
	if err = writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/file", buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result UploadResponse
	if err = c.do(req, &result); err != nil {
		return nil, err
	}
	if result.URL == "" {
		return nil, fmt.Errorf("failed to parse response: %w", ErrMissingFileURL)
	}
	return &result, nil
}

func (c *Client) PerformAction(ctx context.Context, action ActionRequest) (*ActionResponse, error) {
	var result ActionResponse
	if err := c.postJSON(ctx, "/api/file/action", action, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SynthesizeSpeech(ctx context.Context, speech SpeechRequest) (*SpeechResponse, error) {
	var result SpeechResponse
	if err := c.postJSON(ctx, "/api/tts", speech, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		_ = json.Unmarshal(respBody, apiErr)
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if err = json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
