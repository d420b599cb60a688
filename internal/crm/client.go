// Package crm executes commands against the Pipedrive REST API.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pipedrive-agent/internal/domain"
	"pipedrive-agent/internal/integrations/paramstore"
)

const (
	DefaultBaseURL   = "https://api.pipedrive.com/v1"
	maxResponseBytes = 4 << 20
)

// Result is a successful API response.
type Result struct {
	StatusCode int
	Body       json.RawMessage
}

// Data returns the "data" member of the response envelope, or nil.
func (r Result) Data() json.RawMessage {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(r.Body, &envelope); err != nil {
		return nil
	}
	return envelope.Data
}

// Succeeded reports whether the body carries success=true.
func (r Result) Succeeded() bool {
	var envelope struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(r.Body, &envelope); err != nil {
		return false
	}
	return envelope.Success
}

// DecodeData decodes the "data" member into T. A null or missing member
// leaves T at its zero value.
func DecodeData[T any](r Result) (T, error) {
	var out T
	data := r.Data()
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("crm: decode data: %w", err)
	}
	return out, nil
}

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// Client issues single, unretried requests against the CRM API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	getter      paramstore.Getter
	paramPrefix string

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if s := strings.TrimSpace(baseURL); s != "" {
			c.baseURL = s
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit spaces outgoing requests to at most perSecond, with the given
// burst. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a Client that reads its API token from
// <paramPrefix>/pipedrive-token on first use.
func NewClient(ps paramstore.Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("crm: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("crm: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveAPIKey caches the token after the first successful lookup. A failed
// lookup is not cached, so the next request asks SSM again.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	key, err := paramstore.Token(ctx, c.getter, c.paramPrefix+"/pipedrive-token")
	if err != nil {
		return "", err
	}
	c.apiKey = key
	return key, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// Run parses a raw "METHOD /path" string and executes it.
func (c *Client) Run(ctx context.Context, raw string, body map[string]any) (Result, error) {
	cmd, err := ParseCommand(raw)
	if err != nil {
		return Result{}, err
	}
	if body != nil {
		cmd.Body = body
	}
	return c.Execute(ctx, cmd)
}

// Execute issues the request described by cmd.
func (c *Client) Execute(ctx context.Context, cmd domain.Command) (Result, error) {
	if err := Validate(cmd); err != nil {
		return Result{}, err
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("crm: resolve api token: %w", err)
	}

	var payload io.Reader
	if cmd.Body != nil {
		buf, err := json.Marshal(cmd.Body)
		if err != nil {
			return Result{}, fmt.Errorf("crm: marshal body: %w", err)
		}
		payload = bytes.NewReader(buf)
	}

	target := buildURL(c.baseURL, cmd.Path, apiKey)
	req, err := http.NewRequestWithContext(ctx, cmd.Method, target, payload)
	if err != nil {
		return Result{}, &APIRequestError{Message: redact(err.Error(), apiKey), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{}, &APIRequestError{Message: err.Error(), Err: err}
		}
	}

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return Result{}, &APIRequestError{Message: redact(err.Error(), apiKey), Err: errors.New(redact(err.Error(), apiKey))}
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return Result{}, &APIRequestError{StatusCode: res.StatusCode, Message: "read response body: " + redact(err.Error(), apiKey)}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := env.Error
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("Request failed with status code %d", res.StatusCode)
		}
		return Result{}, &APIRequestError{StatusCode: res.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return Result{}, &APIRequestError{StatusCode: res.StatusCode, Message: "malformed response body", Err: decodeErr}
	}
	if env.Success != nil && !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = "Pipedrive API request failed"
		}
		return Result{}, &APIRequestError{StatusCode: res.StatusCode, Message: msg}
	}

	return Result{StatusCode: res.StatusCode, Body: raw}, nil
}

// buildURL joins base and path, percent-encodes spaces, and appends the API
// token as the last query fragment.
func buildURL(baseURL, path, apiKey string) string {
	path = strings.TrimPrefix(path, "/")
	u := strings.TrimRight(baseURL, "/") + "/" + path
	u = strings.ReplaceAll(u, " ", "%20")
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "api_token=" + url.QueryEscape(apiKey)
}
