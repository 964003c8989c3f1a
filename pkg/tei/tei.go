// Package tei provides clients for a text-embeddings-inference style
// server: batched document embedding, query embedding with an optional
// model prompt, and cross-encoder reranking.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rti/askwikidata/pkg/resilience"
)

// ErrModelUnavailable wraps failures to reach the model server. Callers
// decide whether to retry the batch or fail the query.
var ErrModelUnavailable = errors.New("tei: model unavailable")

// Options configures a Client.
type Options struct {
	// QueryPrefix is prepended to queries before embedding, for models
	// trained with an instruction prompt. Documents are embedded as-is.
	QueryPrefix string
	// RequestTimeout bounds each HTTP call. Defaults to 60s.
	RequestTimeout time.Duration
	// RatePerSecond throttles calls to a shared server; 0 disables.
	RatePerSecond float64
}

// Client talks to one inference server.
type Client struct {
	baseURL string
	opts    Options
	http    *http.Client
	limiter *resilience.Limiter
	dims    int
}

// NewClient creates a client and probes the server once to discover the
// embedding width. The probe doubles as the model warmup call.
func NewClient(ctx context.Context, baseURL string, opts Options) (*Client, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	c := &Client{
		baseURL: baseURL,
		opts:    opts,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   opts.RequestTimeout,
		},
	}
	if opts.RatePerSecond > 0 {
		c.limiter = resilience.NewLimiter(opts.RatePerSecond, 1)
	}

	probe, err := c.embed(ctx, []string{"warmup"})
	if err != nil {
		return nil, err
	}
	if len(probe) != 1 || len(probe[0]) == 0 {
		return nil, fmt.Errorf("tei: warmup returned no embedding")
	}
	c.dims = len(probe[0])
	return c, nil
}

// Dims returns the embedding width, fixed at load.
func (c *Client) Dims() int { return c.dims }

// post sends a JSON request and decodes the JSON response. Transient
// failures (network errors, 5xx) are retried once with jitter; anything
// else fails immediately.
func (c *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("tei: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(200+rand.Intn(300)) * time.Millisecond):
			}
		}
		lastErr = c.once(ctx, path, payload, respBody)
		if lastErr == nil || !isTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, path string, payload []byte, respBody any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("tei: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("tei: %s returned status %d: %s", path, resp.StatusCode, body)
		if resp.StatusCode >= 500 {
			err = fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("tei: decode %s response: %w", path, err)
	}
	return nil
}

// isTransient reports whether the call may succeed on retry.
func isTransient(err error) bool {
	if errors.Is(err, ErrModelUnavailable) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// normalize scales v to unit length in place. Zero vectors are returned
// unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
