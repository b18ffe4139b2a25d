// Package postgrest implements remote.Records over a PostgREST API
// (the /rest/v1 surface of Supabase).
package postgrest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
	"github.com/dmitrijs2005/chatwithyou/internal/logging"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	usersPath   = "/rest/v1/Users"
	historyPath = "/rest/v1/Credit_History"
)

type Config struct {
	URL     string
	AnonKey string
	// Tokens supplies the bearer token of every request, typically the
	// identity client's TokenSource. Nil sends the anon key.
	Tokens        oauth2.TokenSource
	Base          http.RoundTripper
	Timeout       time.Duration
	Logger        logging.Logger
	RetryAttempts uint
	RetryDelay    time.Duration
	Limiter       *rate.Limiter
}

type Client struct {
	rest *remote.RESTClient
}

var _ remote.Records = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.AnonKey == "" {
		return nil, errors.New("postgrest: anon key is required")
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AnonKey, TokenType: "Bearer"})
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	hc := &http.Client{
		Timeout:   timeout,
		Transport: &oauth2.Transport{Source: tokens, Base: cfg.Base},
	}

	opts := []remote.RESTOption{
		remote.WithHTTPClient(hc),
		remote.WithHeader("apikey", cfg.AnonKey),
		remote.WithLogger(logger.With("component", "postgrest")),
	}
	if cfg.RetryAttempts > 0 {
		opts = append(opts, remote.WithRetry(cfg.RetryAttempts, cfg.RetryDelay))
	}
	if cfg.Limiter != nil {
		opts = append(opts, remote.WithLimiter(cfg.Limiter))
	}

	rest, err := remote.NewRESTClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("postgrest: %w", err)
	}
	return &Client{rest: rest}, nil
}

func eq(v string) string { return "eq." + v }

var returnMinimal = http.Header{"Prefer": {"return=minimal"}}

func (c *Client) GetProfile(ctx context.Context, id string) (*models.ProfileRecord, error) {
	var rows []models.ProfileRecord
	err := c.rest.Do(ctx, remote.Request{
		Path:  usersPath,
		Query: url.Values{"id": {eq(id)}, "select": {"*"}, "limit": {"1"}},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("get profile %s: %w", id, remote.ErrNotFound)
	}
	return &rows[0], nil
}

func (c *Client) InsertProfile(ctx context.Context, r *models.ProfileRecord) error {
	err := c.rest.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   usersPath,
		Body:   r,
		Header: returnMinimal,
	}, nil)
	if err != nil {
		return fmt.Errorf("insert profile %s: %w", r.ID, err)
	}
	return nil
}

func (c *Client) UpdateProfile(ctx context.Context, id string, u models.ProfileUpdate) error {
	err := c.rest.Do(ctx, remote.Request{
		Method: http.MethodPatch,
		Path:   usersPath,
		Query:  url.Values{"id": {eq(id)}},
		Body:   u,
		Header: returnMinimal,
	}, nil)
	if err != nil {
		return fmt.Errorf("update profile %s: %w", id, err)
	}
	return nil
}

func (c *Client) InsertLedgerEntry(ctx context.Context, e models.LedgerEntry) error {
	err := c.rest.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   historyPath,
		Body:   e,
		Header: returnMinimal,
	}, nil)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (c *Client) ListLedgerEntries(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := c.rest.Do(ctx, remote.Request{
		Path:  historyPath,
		Query: url.Values{"user_id": {eq(userID)}, "select": {"*"}, "order": {"created_at.desc"}},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return rows, nil
}
