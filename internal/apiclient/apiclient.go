// Package apiclient calls the downstream API with an acquired access token.
package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// SubscriptionKeyHeader carries the API Management subscription key.
	SubscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	// CorrelationHeader identifies a single call in server logs.
	CorrelationHeader = "X-Correlation-ID"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
}

// WithTransport sets the base transport. If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.baseTransport = transport
	}
}

// WithTimeout bounds a single call. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// Client issues authenticated GET requests to one endpoint.
type Client struct {
	endpoint        string
	subscriptionKey string
	cfg             clientConfig
}

// Result is the diagnostic view of an API response.
type Result struct {
	StatusCode    int
	Status        string
	Body          string
	CorrelationID string
	// Truncated is set when the body exceeded the read limit.
	Truncated bool
}

func (r Result) String() string {
	return fmt.Sprintf("Status: %s\nContent: %s", r.Status, r.Body)
}

// New creates a Client for endpoint. subscriptionKey may be empty.
func New(endpoint, subscriptionKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing API endpoint: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("API endpoint must be an http(s) URL, got %q", endpoint)
	}

	cfg := clientConfig{
		baseTransport: http.DefaultTransport,
		timeout:       defaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		endpoint:        endpoint,
		subscriptionKey: subscriptionKey,
		cfg:             cfg,
	}, nil
}

// Call sends GET endpoint with the bearer token. Non-2xx responses are not
// errors; they are reported in the Result.
func (c *Client) Call(ctx context.Context, accessToken string) (Result, error) {
	httpClient := &http.Client{
		Timeout: c.cfg.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base: &subscriptionKeyTransport{
				base: c.cfg.baseTransport,
				key:  c.subscriptionKey,
			},
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	correlationID := uuid.NewString()
	req.Header.Set(CorrelationHeader, correlationID)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("calling API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return Result{}, fmt.Errorf("reading API response: %w", err)
	}

	res := Result{
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		CorrelationID: correlationID,
	}
	if len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
		res.Truncated = true
	}
	res.Body = string(body)
	return res, nil
}

// subscriptionKeyTransport adds the subscription key header when configured.
type subscriptionKeyTransport struct {
	base http.RoundTripper
	key  string
}

// Compile-time check that subscriptionKeyTransport implements http.RoundTripper.
var _ http.RoundTripper = (*subscriptionKeyTransport)(nil)

func (t *subscriptionKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.key == "" {
		return t.base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	newReq := req.Clone(req.Context())
	newReq.Header.Set(SubscriptionKeyHeader, t.key)
	return t.base.RoundTrip(newReq)
}
