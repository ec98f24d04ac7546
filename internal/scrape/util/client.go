package util

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultUserAgent = "JobFeed/1.0 (+local)"
	// BrowserUserAgent is sent to platforms that reject non-browser clients.
	BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

	maxBodyBytes = 10 << 20
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("status %d from %s body=%s", e.StatusCode, e.URL, e.Body)
}

func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client is the outbound HTTP client shared by every connector.
type Client struct {
	HC        *http.Client
	Limiter   *HostLimiter
	UserAgent string
}

func NewClient(timeout time.Duration, limiter *HostLimiter, userAgent string) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		HC:        &http.Client{Timeout: timeout},
		Limiter:   limiter,
		UserAgent: userAgent,
	}
}

// WithCookieJar returns a copy with its own cookie jar, for platforms whose
// API expects session cookies from a bootstrap page load.
func (c *Client) WithCookieJar() *Client {
	jar, _ := cookiejar.New(nil)
	hc := *c.HC
	hc.Jar = jar
	return &Client{HC: &hc, Limiter: c.Limiter, UserAgent: c.UserAgent}
}

// Fetch performs one request and returns the body of a 2xx response.
func (c *Client) Fetch(ctx context.Context, method, rawURL string, body []byte, header http.Header) ([]byte, http.Header, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if c.Limiter != nil {
		if err := c.Limiter.WaitURL(ctx, rawURL); err != nil {
			return nil, nil, err
		}
	}

	res, err := c.HC.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, res.Header, fmt.Errorf("read body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return data, res.Header, &StatusError{URL: rawURL, StatusCode: res.StatusCode, Body: Truncate(string(data), 240)}
	}
	return data, res.Header, nil
}

func (c *Client) GetJSON(ctx context.Context, rawURL string, v any, header http.Header) error {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if h.Get("Accept") == "" {
		h.Set("Accept", "application/json")
	}
	data, _, err := c.Fetch(ctx, http.MethodGet, rawURL, nil, h)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

func (c *Client) PostJSON(ctx context.Context, rawURL string, payload, v any, header http.Header) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	if h.Get("Accept") == "" {
		h.Set("Accept", "application/json")
	}
	data, _, err := c.Fetch(ctx, http.MethodPost, rawURL, body, h)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// GetHTML fetches a page with a browser user agent and returns the raw body.
func (c *Client) GetHTML(ctx context.Context, rawURL string) ([]byte, error) {
	h := http.Header{}
	h.Set("User-Agent", BrowserUserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	data, _, err := c.Fetch(ctx, http.MethodGet, rawURL, nil, h)
	return data, err
}

func (c *Client) GetDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	data, err := c.GetHTML(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", rawURL, err)
	}
	return doc, nil
}
