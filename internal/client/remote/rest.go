package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/dmitrijs2005/chatwithyou/internal/logging"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 4 << 20

// RESTClient is the JSON-over-HTTP plumbing shared by the identity and record
// clients. Safe reads (GET, HEAD) are retried while the service is
// unavailable; everything else is sent once.
type RESTClient struct {
	base     *url.URL
	hc       *http.Client
	header   http.Header
	attempts uint
	delay    time.Duration
	limiter  *rate.Limiter
	logger   logging.Logger
}

type RESTOption func(*RESTClient)

func WithHTTPClient(hc *http.Client) RESTOption {
	return func(c *RESTClient) { c.hc = hc }
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) RESTOption {
	return func(c *RESTClient) { c.header.Set(key, value) }
}

// WithRetry sets how often a safe read is attempted and the initial back-off.
func WithRetry(attempts uint, delay time.Duration) RESTOption {
	return func(c *RESTClient) {
		if attempts == 0 {
			attempts = 1
		}
		c.attempts = attempts
		c.delay = delay
	}
}

// WithLimiter makes every attempt wait for a token from l. Clients talking to
// the same project should share one limiter.
func WithLimiter(l *rate.Limiter) RESTOption {
	return func(c *RESTClient) { c.limiter = l }
}

func WithLogger(l logging.Logger) RESTOption {
	return func(c *RESTClient) { c.logger = l }
}

func NewRESTClient(baseURL string, opts ...RESTOption) (*RESTClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host required", baseURL)
	}

	c := &RESTClient{
		base:     u,
		hc:       &http.Client{Timeout: 15 * time.Second},
		header:   http.Header{},
		attempts: 3,
		delay:    200 * time.Millisecond,
		logger:   logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Request describes one call. Path is joined to the base URL. A non-empty
// Bearer sets the Authorization header; Header entries override defaults.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
	Bearer string
}

// URL returns the absolute URL of path with query attached.
func (c *RESTClient) URL(path string, query url.Values) string {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Do sends r and decodes a successful JSON answer into out (which may be nil).
// Failures are *APIError values or wrap ErrUnavailable.
func (c *RESTClient) Do(ctx context.Context, r Request, out any) error {
	if r.Method == "" {
		r.Method = http.MethodGet
	}

	var payload []byte
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return c.send(ctx, r, payload, out)
	}

	return retry.Do(
		func() error { return c.send(ctx, r, payload, out) },
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrUnavailable) }),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug(ctx, "retrying remote read", "path", r.Path, "attempt", n+1, "error", err)
		}),
	)
}

func (c *RESTClient) send(ctx context.Context, r Request, payload []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.URL(r.Path, r.Query), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range c.header {
		req.Header[k] = append([]string(nil), vs...)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.Bearer)
	}
	for k, vs := range r.Header {
		req.Header[k] = append([]string(nil), vs...)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	c.logger.Debug(ctx, "remote call", "method", r.Method, "path", r.Path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		return eb.apiError(resp.StatusCode)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", r.Path, err)
	}
	return nil
}
