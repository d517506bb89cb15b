// Package research provides clients for the external contact-enrichment
// provider. Two implementations exist: a generic HTTP provider whose response
// shape is not guaranteed, and an Anthropic-backed provider.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultTimeout = 60 * time.Second

// Request identifies the person to research.
type Request struct {
	PersonName  string `json:"personName"`
	Company     string `json:"company,omitempty"`
	LinkedInURL string `json:"linkedinUrl,omitempty"`
}

// Client performs research for a single contact, returning the enrichment
// text. All failure modes (network, non-success status, unusable response)
// surface as a single error.
type Client interface {
	Research(ctx context.Context, req Request) (string, error)
}

// Option configures the HTTP client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a research client for the generic HTTP provider.
func NewClient(apiKey, baseURL string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Research(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", eris.Wrap(err, "research: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/research", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "research: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", eris.Wrap(err, "research: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "research: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("research: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var payload map[string]any
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", eris.Wrap(err, "research: unmarshal response")
	}

	text, ok := ExtractText(payload)
	if !ok {
		return "", eris.New("research: no usable text in provider response")
	}
	return text, nil
}

// rateLimitedClient wraps a Client with a shared rate limiter so that calls
// across all jobs never exceed the configured rate.
type rateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimited wraps c with a global rate limit of rps requests per second.
// A non-positive rps returns c unchanged.
func NewRateLimited(c Client, rps float64) Client {
	if rps <= 0 {
		return c
	}
	return &rateLimitedClient{
		inner:   c,
		limiter: rate.NewLimiter(rate.Limit(rps), max(int(rps), 1)),
	}
}

func (c *rateLimitedClient) Research(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "research: rate limiter wait")
	}
	return c.inner.Research(ctx, req)
}
