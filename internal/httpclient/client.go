package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 20 * time.Second
	// DefaultMaxRetries is the number of attempts after the first one.
	DefaultMaxRetries = 3
	// DefaultBackoff is the delay before the first retry; it doubles per attempt.
	DefaultBackoff = 300 * time.Millisecond
	// DefaultUserAgent identifies the harvester to the catalog API.
	DefaultUserAgent = "pricewatch/openrouter-provider-pricing/1.0"

	maxBodySnippet = 300
)

// Client fetches JSON documents with a per-attempt timeout and a capped
// exponential retry loop.
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	userAgent  string
}

// Option configures the Client.
type Option func(*Client)

// WithRateLimit sets requests per second across all callers of the client.
// A non-positive value disables limiting.
func WithRateLimit(rps float64) Option {
	return func(cl *Client) {
		if rps <= 0 {
			cl.limiter = nil
			return
		}
		cl.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithMaxRetries sets how many attempts follow a failed first attempt.
func WithMaxRetries(n int) Option {
	return func(cl *Client) { cl.maxRetries = n }
}

// WithBackoff sets the base delay; attempt i waits base * 2^i.
func WithBackoff(base time.Duration) Option {
	return func(cl *Client) { cl.backoff = base }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(cl *Client) { cl.http = hc }
}

// New creates a new HTTP client.
func New(opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{},
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultBackoff,
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	return c
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string // at most 300 characters
}

func (e *StatusError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	msg := "HTTP " + status
	if e.Body != "" {
		msg += " :: " + e.Body
	}
	return msg
}

// FetchError is returned once every attempt failed. Err is the error of the
// final attempt.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of the final attempt, or 0 when the
// final attempt got no response.
func (e *FetchError) StatusCode() int {
	var se *StatusError
	if errors.As(e.Err, &se) {
		return se.StatusCode
	}
	return 0
}

// GetJSON performs a GET and returns the raw JSON body. Timeouts, transport
// errors, non-2xx responses and malformed JSON all count as failed attempts.
func (c *Client) GetJSON(ctx context.Context, url string) (json.RawMessage, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		attempts++
		body, err := c.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt == c.maxRetries {
			break
		}

		delay := Backoff(c.backoff, attempt)
		slog.Debug("request failed, retrying",
			"url", url, "attempt", attempt+1, "delay", delay, "error", err)
		if !sleep(ctx, delay) {
			break
		}
	}
	return nil, &FetchError{URL: url, Attempts: attempts, Err: lastErr}
}

// Backoff returns base * 2^attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	return base << attempt
}

func (c *Client) attempt(ctx context.Context, url string) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4*maxBodySnippet))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(string(snippet), maxBodySnippet),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parsing response from %s: invalid JSON", url)
	}
	return body, nil
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
