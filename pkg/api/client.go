package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoBody is returned when a streaming response has no body to read.
	ErrNoBody = errors.New("No response body")
	// ErrSnapshot wraps the error field of a quote payload.
	ErrSnapshot = errors.New("stock snapshot error")
	// ErrInvalidPeriod is returned for history periods the backend would reject.
	ErrInvalidPeriod = errors.New("invalid period")
)

// StatusError is a non-2xx response. Its message is what the chat panel shows.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Doer is the part of *http.Client the API client uses.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL string
	http    Doer
	timeout time.Duration
}

type ClientOption func(*Client)

// WithHTTPClient replaces the transport, e.g. with an httptest server client.
func WithHTTPClient(d Doer) ClientOption {
	return func(c *Client) {
		c.http = d
	}
}

// WithTimeout bounds non-streaming requests. Streams are bounded only by the
// caller's context.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse server url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("server url %q must be http or https", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// StreamChat opens the SSE chat stream. The caller owns the returned body and
// cancels the request through ctx.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, "/api/chat/stream", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	log.Debug().Str("component", "api").Str("thread_id", req.ThreadID).Msg("opening chat stream")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}
	return resp.Body, nil
}

// Chat is the synchronous fallback: one request, the whole reply at once.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, "/api/chat", req)
	if err != nil {
		return nil, err
	}
	var out ChatResponse
	if err := c.doJSON(httpReq, &out); err != nil {
		return nil, errors.Wrap(err, "chat")
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build health request")
	}
	var out Health
	if err := c.doJSON(httpReq, &out); err != nil {
		return nil, errors.Wrap(err, "health")
	}
	return &out, nil
}

// Stock fetches the quote snapshot for ticker. An empty period means the
// default. A payload carrying an error field yields ErrSnapshot.
func (c *Client) Stock(ctx context.Context, ticker, period string) (*Snapshot, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, errors.New("empty ticker")
	}
	if period == "" {
		period = DefaultPeriod
	}
	if !ValidPeriod(period) {
		return nil, errors.Wrapf(ErrInvalidPeriod, "%q", period)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	u := fmt.Sprintf("%s/api/stock/%s?period=%s", c.baseURL, url.PathEscape(ticker), url.QueryEscape(period))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build stock request")
	}
	var out Snapshot
	if err := c.doJSON(httpReq, &out); err != nil {
		return nil, errors.Wrapf(err, "stock %s", ticker)
	}
	if out.Error != "" {
		return nil, errors.Wrap(ErrSnapshot, out.Error)
	}
	return &out, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request body")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrapf(err, "build request %s %s", method, path)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
