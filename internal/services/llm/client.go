package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEndpoint    = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout = 15 * time.Second
	defaultAttempts    = 5
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 10 * time.Second

	draftTemperature = 0.2
	maxReplyBytes    = 4 << 20
)

// errEmptyReply marks a 2xx response that carried no text. It is retried.
var errEmptyReply = errors.New("empty reply")

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// DefaultHTTPTimeout returns the default timeout used for LLM requests.
func DefaultHTTPTimeout() time.Duration {
	return defaultHTTPTimeout
}

// Client sends chat completions to an OpenRouter-compatible endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	backoff backoff
	sleeper func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts overrides the default attempt count (defaults to 5).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.backoff.attempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.backoff.base = baseDelay
		c.backoff.max = maxDelay
	}
}

// WithSleeper replaces the wait between attempts. Tests use it to record
// delays without sleeping.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEndpoint
	}

	client := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		backoff: backoff{attempts: defaultAttempts, base: defaultBaseDelay, max: defaultMaxDelay},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Complete sends one system and one user message and returns the reply text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	switch {
	case systemPrompt == "":
		return "", errors.New("llm complete: system prompt required")
	case userPrompt == "":
		return "", errors.New("llm complete: user prompt required")
	case c.cfg.APIKey == "":
		return "", errors.New("llm complete: api key required")
	}
	return c.chat(ctx, "llm complete", chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: draftTemperature,
	})
}

// DraftMinutes turns a speaker-attributed transcript into meeting minutes.
func (c *Client) DraftMinutes(ctx context.Context, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", errors.New("llm draft: transcript required")
	}
	content, err := c.Complete(ctx, MinutesSystemPrompt, BuildMinutesPrompt(transcript))
	if err != nil {
		return "", err
	}
	return unwrapMarkdownFence(content) + "\n", nil
}

// HealthCheck sends a one-line ping. Any non-empty reply proves the key and
// model are usable; it is tried once.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("llm health: api key required")
	}
	ping := *c
	ping.backoff.attempts = 1
	_, err := ping.chat(ctx, "llm health", chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: "Reply with the single word OK."}},
	})
	return err
}

// unwrapMarkdownFence drops a single fence wrapping the whole reply, whatever its info string.
func unwrapMarkdownFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return trimmed
	}
	body := trimmed[3 : len(trimmed)-3]
	newline := strings.IndexByte(body, '\n')
	if newline < 0 {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(body[newline+1:])
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}

func (e *statusError) transient() bool {
	return e.code == http.StatusRequestTimeout || e.code == http.StatusTooManyRequests || e.code >= http.StatusInternalServerError
}

func (c *Client) chat(ctx context.Context, op string, req chatRequest) (string, error) {
	attempts := max(c.backoff.attempts, 1)
	for attempt := 1; ; attempt++ {
		content, err := c.post(ctx, req)
		if err == nil {
			return content, nil
		}
		wait, retry := c.retryAfter(ctx, err, attempt)
		if !retry || attempt >= attempts {
			if attempt > 1 {
				return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempt, err)
			}
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if err := c.wait(ctx, wait); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}
}

func (c *Client) post(ctx context.Context, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &statusError{
			code:       resp.StatusCode,
			body:       strings.TrimSpace(string(raw)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var reply chatResponse
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	if reply.Error != nil {
		return "", fmt.Errorf("api error: %s", strings.TrimSpace(reply.Error.Message))
	}
	if len(reply.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", errEmptyReply)
	}
	choice := reply.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w (finish_reason=%q, refusal=%q)", errEmptyReply, choice.FinishReason, choice.Message.Refusal)
	}
	return content, nil
}

// retryAfter decides whether err is worth another attempt and how long to
// wait first. A server Retry-After wins over the backoff schedule.
func (c *Client) retryAfter(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	var status *statusError
	switch {
	case errors.Is(err, errEmptyReply):
		return c.backoff.delay(attempt), true
	case errors.As(err, &status):
		if !status.transient() {
			return 0, false
		}
		if status.retryAfter > 0 {
			return c.backoff.clamp(status.retryAfter), true
		}
		return c.backoff.delay(attempt), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoff.delay(attempt), true
	}
	return 0, false
}

func (c *Client) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff doubles from base on every attempt and never exceeds max.
type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

func (b backoff) delay(attempt int) time.Duration {
	if b.base <= 0 {
		return 0
	}
	delay := b.base
	for i := 1; i < attempt; i++ {
		if b.max > 0 && delay >= b.max {
			break
		}
		delay *= 2
	}
	return b.clamp(delay)
}

func (b backoff) clamp(delay time.Duration) time.Duration {
	if b.max > 0 && delay > b.max {
		return b.max
	}
	return max(delay, 0)
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(max(seconds, 0)) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}
