package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is used when neither settings nor configuration name a server.
const DefaultBaseURL = "http://localhost:8000"

// DefaultHealthTimeout bounds a single GET /health probe.
const DefaultHealthTimeout = 5 * time.Second

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 512

// Client talks to the inference server.
// Endpoints: GET /health, GET /models, POST /chat, POST /chat/stream.
type Client struct {
	httpClient    *http.Client
	baseURL       func() string
	healthTimeout time.Duration
	tracer        trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURLResolver makes the client look up its base URL on every call,
// so a settings change takes effect without rebuilding the client.
func WithBaseURLResolver(fn func() string) Option {
	return func(c *Client) { c.baseURL = fn }
}

// WithHealthTimeout overrides the health probe timeout.
func WithHealthTimeout(d time.Duration) Option {
	return func(c *Client) { c.healthTimeout = d }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	fixed := strings.TrimRight(baseURL, "/")
	c := &Client{
		// No overall timeout: streams last as long as the model keeps talking
		// and are bounded by the caller's context instead.
		httpClient:    &http.Client{},
		baseURL:       func() string { return fixed },
		healthTimeout: DefaultHealthTimeout,
		tracer:        otel.Tracer("chatmallu/ai"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL the next request will use.
func (c *Client) BaseURL() string {
	u := strings.TrimRight(c.baseURL(), "/")
	if u == "" {
		return DefaultBaseURL
	}
	return u
}

// Health probes GET /health with the health timeout.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &status, nil
}

// Models returns the raw body of GET /models.
func (c *Client) Models(ctx context.Context) (Models, error) {
	resp, err := c.do(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read models response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("models response is not valid JSON")
	}
	return Models(body), nil
}

// Chat performs a one-shot POST /chat.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, span := c.tracer.Start(ctx, "ai.Chat", trace.WithAttributes(
		attribute.String("character.name", req.CharacterName),
	))
	defer span.End()

	resp, err := c.do(ctx, http.MethodPost, "/chat", req)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		err = fmt.Errorf("decode chat response: %w", err)
		recordSpanError(span, err)
		return nil, err
	}
	return &out, nil
}

// ChatStream performs POST /chat/stream and returns the full accumulated
// text once the stream ends. onDelta, if non-nil, sees every fragment.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, onDelta DeltaFunc) (string, error) {
	ctx, span := c.tracer.Start(ctx, "ai.ChatStream", trace.WithAttributes(
		attribute.String("character.name", req.CharacterName),
		attribute.Int("history.len", len(req.ConversationHistory)),
		attribute.Int("max_tokens", req.MaxTokens),
	))
	defer span.End()

	resp, err := c.do(ctx, http.MethodPost, "/chat/stream", req)
	if err != nil {
		recordSpanError(span, err)
		return "", err
	}
	defer resp.Body.Close()

	var body io.Reader
	if resp.Body != nil && resp.Body != http.NoBody {
		body = resp.Body
	}
	text, err := Decode(ctx, body, onDelta)
	if err != nil {
		recordSpanError(span, err)
		return "", err
	}
	span.SetAttributes(attribute.Int("response.len", len(text)))
	return text, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return resp, nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
