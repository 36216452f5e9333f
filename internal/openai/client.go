// Package openai provides the text variation generator backed by an
// OpenAI-compatible chat completions endpoint. It implements the
// overlay.Generator capability: n overlay texts derived from a base
// text, with the base echoed verbatim as the first element.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Static errors for OpenAI client operations.
var (
	// ErrAPIKeyRequired is returned when the API key is not provided.
	ErrAPIKeyRequired = errors.New("openai: API key is required")
	// ErrNoChoices is returned when the completion response has no choices.
	ErrNoChoices = errors.New("openai: no choices in response")
	// ErrBadVariations is returned when the model output cannot be parsed
	// into the requested number of variations.
	ErrBadVariations = errors.New("openai: malformed variations in response")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("openai: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("openai: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("openai: request failed")
)

const systemPrompt = "You write short overlay captions for social media video clips. " +
	"Respond with a JSON array of strings and nothing else. " +
	"Each caption must be a fresh variation of the user's base text, non-empty and at most 15 words."

// Client generates overlay text variations through the chat completions API.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithBaseURL sets a custom base URL for an OpenAI-compatible endpoint.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel sets the model used for variation generation.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		c.baseBackoff = d
	}
}

// NewClient creates a new OpenAI client. The API key can be set via the
// WithAPIKey option; if not provided, it is read from the environment
// variable OPENAI_API_KEY.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL:     "https://api.openai.com/v1",
		model:       "gpt-4o-mini",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  2,
		baseBackoff: 1 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	return c, nil
}

// chatRequest is the JSON body for a chat completion.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the JSON response from a chat completion.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateVariations returns n overlay texts for baseText. The first
// element is baseText itself, byte for byte; the model supplies the
// remaining n-1 variations. promptContext, when non-empty, is passed to
// the model verbatim to steer variation style.
func (c *Client) GenerateVariations(ctx context.Context, baseText string, n int, promptContext string) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: need a positive count, got %d", ErrBadVariations, n)
	}
	if n == 1 {
		return []string{baseText}, nil
	}

	userPrompt := fmt.Sprintf("Base text: %q\nGenerate %d variations.", baseText, n-1)
	if promptContext != "" {
		userPrompt += fmt.Sprintf("\nContext: %s", promptContext)
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.9,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	var resp chatResponse
	if err := c.doRequestWithRetry(ctx, c.baseURL+"/chat/completions", bodyBytes, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	variations, err := parseVariations(resp.Choices[0].Message.Content, n-1)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, n)
	out = append(out, baseText)
	out = append(out, variations...)
	return out, nil
}

// parseVariations decodes the model output as a JSON array of want
// non-empty strings. Surrounding markdown code fences are tolerated.
func parseVariations(content string, want int) ([]string, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var variations []string
	if err := json.Unmarshal([]byte(trimmed), &variations); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadVariations, err)
	}

	if len(variations) < want {
		return nil, fmt.Errorf("%w: got %d variations, want %d", ErrBadVariations, len(variations), want)
	}
	variations = variations[:want]

	for i, v := range variations {
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%w: variation %d is empty", ErrBadVariations, i)
		}
	}
	return variations, nil
}

// doRequestWithRetry performs a POST with exponential backoff retry on
// transient failures (network errors, 429, 5xx).
func (c *Client) doRequestWithRetry(ctx context.Context, url string, body []byte, result interface{}) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("openai: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		err := c.doRequest(ctx, url, body, result)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("openai: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *Client) doRequest(ctx context.Context, url string, body []byte, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openai: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("openai: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("openai: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == 429 {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("openai: unmarshal response: %w", err)
		}
	}

	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
