// Package relay forwards chat messages to an OpenAI-compatible completions
// API and hands back either a fragment stream or one finished answer.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pbaille/studylog/internal/metrics"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second
)

// Config holds what the client needs to reach the API
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	BatchTimeout time.Duration
	RateLimit    float64
	RateBurst    int
}

// Client talks to the chat completions endpoint
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger used for dropped fragments and failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client. The API key is required.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultTimeout
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		cfg: cfg,
		// streaming responses are bounded by ctx, not a client timeout
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     zap.NewNop(),
		metrics:    metrics.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type completionRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Stream         bool              `json:"stream,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CompleteOptions tunes a batch call
type CompleteOptions struct {
	Model string
	// JSON asks the API for a json_object response
	JSON bool
}

// Complete sends messages and returns the finished answer text.
// An empty reply yields "".
func (c *Client) Complete(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}
	req := completionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: c.cfg.MaxTokens,
	}
	if opts.JSON {
		req.ResponseFormat = map[string]string{"type": "json_object"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.BatchTimeout)
	defer cancel()

	resp, err := c.post(ctx, req)
	if err != nil {
		c.record("batch", err)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record("batch", err)
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		err = &UpstreamError{Status: resp.StatusCode, Message: "malformed response: " + truncate(string(body), 200)}
		c.record("batch", err)
		return "", err
	}
	c.record("batch", nil)

	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

// Stream sends messages with streaming enabled. The caller must read the
// returned stream to io.EOF or Close it.
func (c *Client) Stream(ctx context.Context, messages []Message, model string) (*Stream, error) {
	if model == "" {
		model = c.cfg.Model
	}
	resp, err := c.post(ctx, completionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		c.record("stream", err)
		return nil, err
	}
	return newStream(resp.Body, c), nil
}

// post waits on the limiter and returns a 2xx response or an error
func (c *Client) post(ctx context.Context, payload completionRequest) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		upErr := upstreamError(resp.StatusCode, body)
		c.logger.Warn("completions api rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("message", upErr.Message),
			zap.Bool("stream", payload.Stream),
		)
		return nil, upErr
	}
	return resp, nil
}

func (c *Client) record(mode string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "transport_error"
		var up *UpstreamError
		if errors.As(err, &up) {
			outcome = "upstream_error"
		}
	}
	c.metrics.RelayRequests.WithLabelValues(mode, outcome).Inc()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
