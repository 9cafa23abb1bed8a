package duckduckgo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	BaseURL       = "https://duckduckgo.com"
	DefaultLocale = "ru-ru"
	userAgent     = "Mozilla/5.0"
)

var (
	ErrNoToken = errors.New("search token not found")

	vqdPattern = regexp.MustCompile(`vqd=['"]([^'"]+)['"]`)
)

// Client is a scrape-based DuckDuckGo image search. The search page hands out
// a vqd token that the JSON endpoint requires.
type Client struct {
	baseURL    string
	locale     string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

func WithLocale(locale string) ClientOption {
	return func(c *Client) {
		if locale != "" {
			c.locale = locale
		}
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: BaseURL,
		locale:  DefaultLocale,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type imageResult struct {
	Image any `json:"image"`
}

type imagesResponse struct {
	Results []imageResult `json:"results"`
}

// SearchImages returns up to limit image URLs for query. Results without a
// string image field are skipped after the limit is applied.
func (c *Client) SearchImages(ctx context.Context, query string, limit int) ([]string, error) {
	token, err := c.token(ctx, query)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("l", c.locale)
	params.Set("o", "json")
	params.Set("q", query)
	params.Set("vqd", token)
	body, err := c.get(ctx, c.baseURL+"/i.js?"+params.Encode(), "application/json")
	if err != nil {
		return nil, err
	}

	var resp imagesResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse image results: %w", err)
	}

	results := resp.Results
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if s, ok := r.Image.(string); ok && s != "" {
			urls = append(urls, s)
		}
	}
	return urls, nil
}

func (c *Client) token(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("iax", "images")
	params.Set("ia", "images")
	body, err := c.get(ctx, c.baseURL+"/?"+params.Encode(), "text/html")
	if err != nil {
		return "", err
	}
	match := vqdPattern.FindSubmatch(body)
	if match == nil {
		return "", ErrNoToken
	}
	return string(match[1]), nil
}

func (c *Client) get(ctx context.Context, u, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duckduckgo returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
