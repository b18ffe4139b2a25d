// Package remote declares what the client needs from the managed backend:
// an identity service and a record service. Concrete clients live in the
// subpackages; remotetest provides an in-memory double.
package remote

import (
	"context"
	"net/url"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
)

// Identity is the account and session API.
//
// Implementations keep the current session themselves: a successful sign-in,
// sign-up with an active session or OAuth exchange establishes it, SignOut
// drops it, and GetSession/GetUser report on it.
type Identity interface {
	SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error)
	// SignUp creates the identity. The returned session is inactive while the
	// email still needs confirmation; its User is always set.
	SignUp(ctx context.Context, email, password string, data map[string]any) (*models.AuthSession, error)
	SignOut(ctx context.Context) error
	// GetSession returns the current session, or nil without error when
	// there is none.
	GetSession(ctx context.Context) (*models.AuthSession, error)
	// GetUser returns ErrNoSession when nobody is signed in.
	GetUser(ctx context.Context) (*models.IdentityUser, error)
	// SignInWithOAuth returns the provider URL the whole app has to navigate to.
	SignInWithOAuth(ctx context.Context, provider, returnURL string) (string, error)
	// ExchangeOAuthCallback turns the parameters the provider redirected back
	// with into a session. Without recognised parameters it returns nil, nil.
	ExchangeOAuthCallback(ctx context.Context, params url.Values) (*models.AuthSession, error)
	UpdateUser(ctx context.Context, attrs models.UserAttributes) (*models.IdentityUser, error)
	ResetPasswordForEmail(ctx context.Context, email, returnURL string) error
	// DeleteUser removes an identity. Used to roll back a half-finished
	// registration; requires administrative rights.
	DeleteUser(ctx context.Context, id string) error
}

// Records is the table API for the Users and Credit_History tables.
type Records interface {
	// GetProfile returns ErrNotFound when the identity has no Users row.
	GetProfile(ctx context.Context, id string) (*models.ProfileRecord, error)
	InsertProfile(ctx context.Context, r *models.ProfileRecord) error
	UpdateProfile(ctx context.Context, id string, u models.ProfileUpdate) error
	InsertLedgerEntry(ctx context.Context, e models.LedgerEntry) error
	// ListLedgerEntries returns the user's history, newest first.
	ListLedgerEntries(ctx context.Context, userID string) ([]models.LedgerEntry, error)
}
