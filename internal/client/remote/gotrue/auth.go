package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
)

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error) {
	var s models.AuthSession
	err := c.rest.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/token",
		Query:  url.Values{"grant_type": {"password"}},
		Body:   map[string]string{"email": email, "password": password},
		Bearer: c.anonKey,
	}, &s)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if !s.Active() {
		return nil, fmt.Errorf("sign in: %w", remote.ErrNoSession)
	}
	c.setSession(ctx, &s)
	return &s, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, data map[string]any) (*models.AuthSession, error) {
	var raw json.RawMessage
	err := c.rest.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/signup",
		Body:   map[string]any{"email": email, "password": password, "data": data},
		Bearer: c.anonKey,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	// With email confirmation enabled the service answers with the bare user.
	var s models.AuthSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("sign up: decode session: %w", err)
	}
	if !s.Active() {
		var u models.IdentityUser
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("sign up: decode user: %w", err)
		}
		if u.ID == "" {
			return nil, errors.New("sign up: response carries no user")
		}
		return &models.AuthSession{User: &u}, nil
	}

	c.setSession(ctx, &s)
	return &s, nil
}

// SignOut ends the session on the service and always forgets it locally.
func (c *Client) SignOut(ctx context.Context) error {
	s := c.current(ctx)
	c.clearSession(ctx)
	if !s.Active() {
		return nil
	}

	err := c.rest.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/logout",
		Bearer: s.AccessToken,
	}, nil)
	if err != nil && !sessionEnded(err) {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (c *Client) GetSession(ctx context.Context) (*models.AuthSession, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	s := c.current(ctx)
	if !s.Active() {
		return nil, nil
	}
	if !s.Expired(c.now(), refreshLeeway) {
		return s, nil
	}

	if s.RefreshToken == "" {
		c.clearSession(ctx)
		return nil, nil
	}

	var next models.AuthSession
	err := c.rest.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/token",
		Query:  url.Values{"grant_type": {"refresh_token"}},
		Body:   map[string]string{"refresh_token": s.RefreshToken},
		Bearer: c.anonKey,
	}, &next)
	if err != nil {
		if sessionEnded(err) {
			c.logger.Info(ctx, "refresh token rejected, session ended", "error", err)
			c.clearSession(ctx)
			return nil, nil
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if next.User == nil {
		next.User = s.User
	}
	c.setSession(ctx, &next)
	return &next, nil
}

func (c *Client) GetUser(ctx context.Context) (*models.IdentityUser, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, remote.ErrNoSession
	}

	u, err := c.fetchUser(ctx, s.AccessToken)
	if err != nil {
		if sessionEnded(err) {
			c.clearSession(ctx)
			return nil, fmt.Errorf("get user: %w", remote.ErrNoSession)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	c.setUser(ctx, u)
	return u, nil
}

func (c *Client) fetchUser(ctx context.Context, token string) (*models.IdentityUser, error) {
	var u models.IdentityUser
	if err := c.rest.Do(ctx, remote.Request{Path: "/auth/v1/user", Bearer: token}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) UpdateUser(ctx context.Context, attrs models.UserAttributes) (*models.IdentityUser, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, remote.ErrNoSession
	}

	var u models.IdentityUser
	err = c.rest.Do(ctx, remote.Request{
		Method: http.MethodPut,
		Path:   "/auth/v1/user",
		Body:   attrs,
		Bearer: s.AccessToken,
	}, &u)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	c.setUser(ctx, &u)
	return &u, nil
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, returnURL string) error {
	q := url.Values{}
	if returnURL != "" {
		q.Set("redirect_to", returnURL)
	}
	err := c.rest.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/recover",
		Query:  q,
		Body:   map[string]string{"email": email},
		Bearer: c.anonKey,
	}, nil)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if c.serviceKey == "" {
		return fmt.Errorf("delete user: service role key not configured: %w", remote.ErrUnauthorized)
	}
	err := c.rest.Do(ctx, remote.Request{
		Method: http.MethodDelete,
		Path:   "/auth/v1/admin/users/" + url.PathEscape(id),
		Header: http.Header{"Apikey": {c.serviceKey}},
		Bearer: c.serviceKey,
	}, nil)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// sessionFromFragment rebuilds a session from the implicit-flow parameters
// (#access_token=...&refresh_token=...&expires_in=...).
func sessionFromFragment(params url.Values) *models.AuthSession {
	s := &models.AuthSession{
		AccessToken:  params.Get("access_token"),
		RefreshToken: params.Get("refresh_token"),
		TokenType:    params.Get("token_type"),
	}
	if v, err := strconv.ParseInt(params.Get("expires_in"), 10, 64); err == nil {
		s.ExpiresIn = v
	}
	if v, err := strconv.ParseInt(params.Get("expires_at"), 10, 64); err == nil {
		s.ExpiresAt = v
	}
	return s
}
