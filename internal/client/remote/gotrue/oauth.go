package gotrue

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
	"golang.org/x/oauth2"
)

// SignInWithOAuth builds the authorize URL for provider using the PKCE
// flow. The verifier is persisted so the callback can be exchanged after
// control returns from the provider, possibly in a new process.
func (c *Client) SignInWithOAuth(ctx context.Context, provider, returnURL string) (string, error) {
	if provider == "" {
		return "", fmt.Errorf("oauth: provider is required")
	}

	verifier := oauth2.GenerateVerifier()
	c.store.Set(ctx, VerifierKey, []byte(verifier))

	conf := oauth2.Config{
		Endpoint:    oauth2.Endpoint{AuthURL: c.authURL},
		RedirectURL: returnURL,
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("provider", provider),
		oauth2.S256ChallengeOption(verifier),
	}
	if returnURL != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_to", returnURL))
	}
	return conf.AuthCodeURL("", opts...), nil
}

// ExchangeOAuthCallback establishes the session from the parameters the
// provider redirected back with: an authorization code (PKCE flow) or the
// tokens themselves (implicit flow). Parameters carrying neither yield
// nil, nil.
func (c *Client) ExchangeOAuthCallback(ctx context.Context, params url.Values) (*models.AuthSession, error) {
	if e := params.Get("error"); e != "" {
		return nil, &remote.APIError{
			Status:  http.StatusBadRequest,
			Code:    e,
			Message: params.Get("error_description"),
		}
	}

	if code := params.Get("code"); code != "" {
		return c.exchangeCode(ctx, code)
	}

	if params.Get("access_token") != "" {
		s := sessionFromFragment(params)
		u, err := c.fetchUser(ctx, s.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("oauth callback: %w", err)
		}
		s.User = u
		c.setSession(ctx, s)
		return s, nil
	}

	return nil, nil
}

func (c *Client) exchangeCode(ctx context.Context, code string) (*models.AuthSession, error) {
	verifier, ok := c.store.Get(ctx, VerifierKey)
	if !ok {
		return nil, fmt.Errorf("oauth callback: no pending sign-in on this device: %w", remote.ErrNoSession)
	}

	var s models.AuthSession
	err := c.rest.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/token",
		Query:  url.Values{"grant_type": {"pkce"}},
		Body:   map[string]string{"auth_code": code, "code_verifier": string(verifier)},
		Bearer: c.anonKey,
	}, &s)
	c.store.Delete(ctx, VerifierKey)
	if err != nil {
		return nil, fmt.Errorf("oauth callback: %w", err)
	}

	c.setSession(ctx, &s)
	return &s, nil
}

// TokenSource presents the current access token, or the anon key while
// nobody is signed in. It is meant for an oauth2.Transport in front of the
// record service; it must not be wrapped in oauth2.ReuseTokenSource, which
// would pin the anon key after sign-in.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, c: c}
}

type tokenSource struct {
	ctx context.Context
	c   *Client
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	s, err := ts.c.GetSession(ts.ctx)
	if err != nil {
		return nil, err
	}
	return bearerToken(ts.c.bearer(s), s), nil
}

func bearerToken(access string, s *models.AuthSession) *oauth2.Token {
	t := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if s.Active() && s.ExpiresAt > 0 {
		t.Expiry = time.Unix(s.ExpiresAt, 0)
	}
	return t
}
