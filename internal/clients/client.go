package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"
	maxErrorBody        = 64 << 10
)

type correlationKey struct{}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

type Config struct {
	Name    string
	BaseURL string
	Timeout time.Duration
	// Retries bounds retries of idempotent GET requests.
	Retries uint64
	// BreakerFailures consecutive failures open the breaker for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client is the shared transport for a collaborator: JSON over HTTP with
// tracing, a circuit breaker, and bounded retries of GETs.
type Client struct {
	name    string
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	retries uint64
	logger  *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default traced client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid %s base url %q", cfg.Name, cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	c := &Client{
		name:    cfg.Name,
		baseURL: u,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retries: cfg.Retries,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("upstream", cfg.Name)

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

func (c *Client) Name() string {
	return c.name
}

// getJSON issues a GET and decodes the response into out. Transport errors
// and temporary API errors are retried with exponential backoff.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	var body []byte
	op := func() error {
		b, err := c.execute(ctx, http.MethodGet, path, query, "", nil)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Temporary() {
				return backoff.Permanent(err)
			}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.logger.Debug("retrying request", "path", path, "wait", wait, "err", err)
	})
	if err != nil {
		return err
	}
	return decode(body, out)
}

// sendJSON issues a non-idempotent request with a JSON body. It is never
// retried.
func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", c.name, err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	body, err := c.execute(ctx, method, path, nil, contentType, reader)
	if err != nil {
		return err
	}
	return decode(body, out)
}

// sendRaw posts an already-encoded body, such as multipart form data.
func (c *Client) sendRaw(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	b, err := c.execute(ctx, http.MethodPost, path, nil, contentType, body)
	if err != nil {
		return err
	}
	return decode(b, out)
}

func (c *Client) execute(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		u := c.baseURL.JoinPath(path)
		if len(query) > 0 {
			u.RawQuery = query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if cid := CorrelationID(ctx); cid != "" {
			req.Header.Set(HeaderCorrelationID, cid)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s %s: %w", c.name, method, path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, decodeAPIError(c.name, resp.StatusCode, b)
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%s %s %s: read body: %w", c.name, method, path, err)
		}
		return b, nil
	})
}

func decode(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
