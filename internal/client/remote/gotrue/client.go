// Package gotrue is the identity client for a GoTrue-compatible auth API
// (the /auth/v1 surface of Supabase).
//
// The client owns the current session. It is kept in memory and mirrored
// into a Storage so that it survives restarts; an expired access token is
// refreshed on demand.
package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
	"github.com/dmitrijs2005/chatwithyou/internal/logging"
	"golang.org/x/time/rate"
)

const (
	SessionKey  = "auth_token"
	VerifierKey = "pkce_code_verifier"

	// refreshLeeway refreshes a token slightly before it actually expires.
	refreshLeeway = 30 * time.Second
)

// Storage persists small values across restarts. The local cache implements it.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Delete(ctx context.Context, keys ...string)
}

type Config struct {
	URL     string
	AnonKey string
	// ServiceRoleKey enables DeleteUser. Leave empty on end-user devices.
	ServiceRoleKey string
	HTTPClient     *http.Client
	Logger         logging.Logger
	RetryAttempts  uint
	RetryDelay     time.Duration
	Limiter        *rate.Limiter
}

type Client struct {
	rest       *remote.RESTClient
	authURL    string
	anonKey    string
	serviceKey string
	store      Storage
	logger     logging.Logger
	now        func() time.Time

	refreshMu sync.Mutex

	mu      sync.Mutex
	loaded  bool
	session *models.AuthSession
}

var _ remote.Identity = (*Client)(nil)

func New(cfg Config, store Storage) (*Client, error) {
	if cfg.AnonKey == "" {
		return nil, errors.New("gotrue: anon key is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.With("component", "gotrue")

	opts := []remote.RESTOption{
		remote.WithHeader("apikey", cfg.AnonKey),
		remote.WithLogger(logger),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, remote.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.RetryAttempts > 0 {
		opts = append(opts, remote.WithRetry(cfg.RetryAttempts, cfg.RetryDelay))
	}
	if cfg.Limiter != nil {
		opts = append(opts, remote.WithLimiter(cfg.Limiter))
	}

	rest, err := remote.NewRESTClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("gotrue: %w", err)
	}

	return &Client{
		rest:       rest,
		authURL:    rest.URL("/auth/v1/authorize", nil),
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceRoleKey,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// current returns the in-memory session, loading it from storage once.
func (c *Client) current(ctx context.Context) *models.AuthSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		c.loaded = true
		if data, ok := c.store.Get(ctx, SessionKey); ok {
			var s models.AuthSession
			if err := json.Unmarshal(data, &s); err != nil || !s.Active() {
				c.logger.Warn(ctx, "stored session is unusable, dropping it", "error", err)
				c.store.Delete(ctx, SessionKey)
			} else {
				c.fillExpiry(&s)
				c.session = &s
			}
		}
	}
	return c.session
}

// fillExpiry derives ExpiresAt from expires_in or the token's exp claim.
func (c *Client) fillExpiry(s *models.AuthSession) {
	if s.ExpiresAt != 0 {
		return
	}
	if s.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
		return
	}
	if exp, ok := tokenExpiry(s.AccessToken); ok {
		s.ExpiresAt = exp.Unix()
	}
}

func (c *Client) setSession(ctx context.Context, s *models.AuthSession) {
	c.fillExpiry(s)

	data, err := json.Marshal(s)
	if err != nil {
		c.logger.Error(ctx, "failed to encode session", "error", err)
	}

	c.mu.Lock()
	c.loaded = true
	c.session = s
	c.mu.Unlock()

	if err == nil {
		c.store.Set(ctx, SessionKey, data)
	}
}

func (c *Client) clearSession(ctx context.Context) {
	c.mu.Lock()
	c.loaded = true
	c.session = nil
	c.mu.Unlock()

	c.store.Delete(ctx, SessionKey)
}

func (c *Client) setUser(ctx context.Context, u *models.IdentityUser) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return
	}
	next := *s
	next.User = u
	c.setSession(ctx, &next)
}

// bearer is the token to present: the user's access token or the anon key.
func (c *Client) bearer(s *models.AuthSession) string {
	if s.Active() {
		return s.AccessToken
	}
	return c.anonKey
}

// sessionEnded reports whether err means the refresh token or session is no
// longer accepted, as opposed to a transient failure.
func sessionEnded(err error) bool {
	return errors.Is(err, remote.ErrInvalidCredentials) ||
		errors.Is(err, remote.ErrNoSession) ||
		errors.Is(err, remote.ErrUnauthorized) ||
		errors.Is(err, remote.ErrNotFound)
}
