package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Generator produces an answer for a query, optionally grounded in
// retrieved context. Implemented by the HTTP client here and by
// in-process model runners.
type Generator interface {
	Generate(ctx context.Context, query, contextText string) (string, error)
}

// ErrUnavailable wraps transport failures to the inference endpoint.
var ErrUnavailable = errors.New("llm: endpoint unavailable")

// ClientOptions configures the HTTP generation client.
type ClientOptions struct {
	// URL is the model-specific inference endpoint.
	URL string
	// Family selects the prompt template.
	Family Family
	// APIKeyEnv names the environment variable holding the bearer token.
	// Read once at construction; empty disables auth.
	APIKeyEnv string
	// MaxNewTokens bounds the completion length. Defaults to 250.
	MaxNewTokens int
	// RequestTimeout bounds each HTTP call. Defaults to 120s.
	RequestTimeout time.Duration
	// Now supplies today's date for the system prompt. Defaults to
	// time.Now.
	Now func() time.Time
}

// Client calls a hosted-inference endpoint: the request carries the
// rendered prompt as "inputs", the response is a JSON array whose first
// element holds "generated_text" including the prompt prefix.
type Client struct {
	opts   ClientOptions
	apiKey string
	http   *http.Client
}

// NewClient builds a Client, reading the API key from the environment.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("llm: ClientOptions.URL is required")
	}
	if _, err := Prompt(opts.Family, "", ""); err != nil {
		return nil, err
	}
	if opts.MaxNewTokens <= 0 {
		opts.MaxNewTokens = 250
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 120 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var apiKey string
	if opts.APIKeyEnv != "" {
		apiKey = os.Getenv(opts.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("llm: %s is not set", opts.APIKeyEnv)
		}
	}
	return &Client{
		opts:   opts,
		apiKey: apiKey,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   opts.RequestTimeout,
		},
	}, nil
}

type generateRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		MaxNewTokens int `json:"max_new_tokens"`
	} `json:"parameters"`
}

type generateResponse struct {
	GeneratedText string `json:"generated_text"`
}

// Generate renders the prompt for the configured family and calls the
// endpoint. Transient failures are retried once with jitter. The answer
// is the completion with the prompt prefix and surrounding whitespace
// stripped.
func (c *Client) Generate(ctx context.Context, query, contextText string) (string, error) {
	system := PlainSystemPrompt
	if contextText != "" {
		system = SystemPrompt(contextText, c.opts.Now())
	}
	prompt, err := Prompt(c.opts.Family, system, query)
	if err != nil {
		return "", err
	}

	var text string
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(300+rand.Intn(500)) * time.Millisecond):
			}
		}
		text, err = c.call(ctx, prompt)
		if err == nil || !errors.Is(err, ErrUnavailable) {
			break
		}
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimPrefix(text, prompt)), nil
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	var reqBody generateRequest
	reqBody.Inputs = prompt
	reqBody.Parameters.MaxNewTokens = c.opts.MaxNewTokens

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, body)
		}
		return "", fmt.Errorf("llm: status %d: %s", resp.StatusCode, body)
	}

	var results []generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(results) == 0 {
		return "", errors.New("llm: empty response")
	}
	return results[0].GeneratedText, nil
}
