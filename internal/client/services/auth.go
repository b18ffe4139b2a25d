// Package services contains the operations the client's screens invoke.
// Every operation runs as a session.Op: loading is on while it is in flight
// and its outcome is committed to the session store only if no newer
// operation or logout has happened in the meantime.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
	"github.com/dmitrijs2005/chatwithyou/internal/client/session"
	"github.com/dmitrijs2005/chatwithyou/internal/logging"
)

// AuthService is the set of account operations.
//
// Operations never panic on bad input; the remote service rejects what it
// does not accept and the rejection comes back as a *Failure.
type AuthService interface {
	Login(ctx context.Context, email, password string) error
	// Register returns the new profile, or nil when the account still has to
	// be confirmed by email before anyone can sign in.
	Register(ctx context.Context, name, email, password string) (*models.UserProfile, error)
	// Logout always leaves the client signed out, even when the remote call
	// fails.
	Logout(ctx context.Context) error
	// GetCurrentUser asks the remote service who is signed in. It returns
	// nil, nil when nobody is.
	GetCurrentUser(ctx context.Context) (*models.UserProfile, error)
	Refresh(ctx context.Context) (*models.UserProfile, error)
	// SocialLoginStart returns the provider URL the app has to navigate to.
	SocialLoginStart(ctx context.Context, provider string) (string, error)
	// SocialLoginComplete finishes a provider login from the parameters the
	// provider redirected back with. Without a session it returns nil, nil.
	SocialLoginComplete(ctx context.Context, params url.Values) (*models.UserProfile, error)
	UpdateProfile(ctx context.Context, patch models.ProfilePatch) error
	ResetPasswordRequest(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	VerifyEmail(ctx context.Context) (bool, error)
	// UploadAvatar stores an image and returns its public URL. The profile is
	// not changed; pass the URL to UpdateProfile.
	UploadAvatar(ctx context.Context, filename string, body io.Reader) (string, error)
}

// AvatarStorage stores avatar images.
type AvatarStorage interface {
	UploadAvatar(ctx context.Context, userID, filename string, body io.Reader) (string, error)
}

// AuthConfig holds the product settings the auth operations need.
type AuthConfig struct {
	// SignupBonus is credited to every new account.
	SignupBonus int64
	// OAuthReturnURL is where providers send the user back to.
	OAuthReturnURL string
	// ResetReturnURL is linked from password reset emails.
	ResetReturnURL string
}

var socialProviders = map[string]bool{
	models.ProviderGoogle:   true,
	models.ProviderFacebook: true,
	models.ProviderApple:    true,
}

const signupBonusDescription = "Signup bonus"

type authService struct {
	deps
	avatars AvatarStorage
	cfg     AuthConfig
}

// NewAuthService wires the auth operations. avatars may be nil, in which
// case UploadAvatar fails with ErrStorageDisabled.
func NewAuthService(identity remote.Identity, records remote.Records, store *session.Store, avatars AvatarStorage, cfg AuthConfig, logger logging.Logger) AuthService {
	return &authService{
		deps:    newDeps(identity, records, store, logger, "auth"),
		avatars: avatars,
		cfg:     cfg,
	}
}

// creditBonus writes the signup ledger row. Its failure does not undo the
// account; it is reported through the store.
func (a *authService) creditBonus(ctx context.Context, op *session.Op, userID string, now time.Time) {
	if a.cfg.SignupBonus <= 0 {
		return
	}
	err := a.records.InsertLedgerEntry(ctx, models.LedgerEntry{
		UserID:      userID,
		Amount:      a.cfg.SignupBonus,
		ActionType:  models.LedgerEarn,
		Description: signupBonusDescription,
		CreatedAt:   now,
	})
	if err != nil {
		a.logger.Error(ctx, "failed to record signup bonus", "user_id", userID, "error", err)
		op.CommitError("signup bonus could not be recorded: " + describe(err))
	}
}

func (a *authService) Login(ctx context.Context, email, password string) error {
	op := a.store.Begin()
	defer op.End()

	s, err := a.identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		return a.fail(ctx, op, "login", err)
	}
	if a.abandonSession(ctx, op) {
		return ErrSuperseded
	}

	a.touchLastLogin(ctx, s.User.ID, a.now())

	p, err := a.profileOf(ctx, s.User)
	if err != nil {
		a.dropSession(ctx)
		return a.fail(ctx, op, "login", err)
	}

	if err := a.commitSession(ctx, op, p); err != nil {
		return err
	}
	a.logger.Info(ctx, "login succeeded", "user_id", p.ID)
	return nil
}

func (a *authService) Register(ctx context.Context, name, email, password string) (*models.UserProfile, error) {
	op := a.store.Begin()
	defer op.End()

	s, err := a.identity.SignUp(ctx, email, password, map[string]any{"full_name": name, "username": name})
	if err != nil {
		return nil, a.fail(ctx, op, "registration", err)
	}
	u := s.User
	now := a.now()

	rec := models.NewProfileRecord(u, name, nil, a.cfg.SignupBonus, now)
	if err := a.records.InsertProfile(ctx, rec); err != nil {
		a.rollbackIdentity(ctx, u.ID, s.Active())
		return nil, a.fail(ctx, op, "registration", err)
	}

	// The tally is stored with the profile; its ledger row follows at once
	// whatever happens to the session afterwards.
	a.creditBonus(ctx, op, u.ID, now)

	if !s.Active() {
		a.logger.Info(ctx, "registration awaits email confirmation", "user_id", u.ID)
		return nil, nil
	}

	p := models.NormalizeProfile(u, rec)
	if err := a.commitSession(ctx, op, p); err != nil {
		a.logger.Info(ctx, "account created but not signed in", "user_id", u.ID)
		return nil, err
	}
	a.logger.Info(ctx, "registration succeeded", "user_id", u.ID)
	return p, nil
}

// rollbackIdentity deletes an identity whose profile row could not be
// created, so no account exists without a profile.
func (a *authService) rollbackIdentity(ctx context.Context, id string, signedIn bool) {
	if signedIn {
		a.dropSession(ctx)
	}
	if err := a.identity.DeleteUser(ctx, id); err != nil {
		a.logger.Error(ctx, "failed to roll back identity", "user_id", id, "error", err)
		return
	}
	a.logger.Info(ctx, "rolled back identity without profile", "user_id", id)
}

func (a *authService) Logout(ctx context.Context) error {
	op := a.store.Begin()
	defer op.End()

	err := a.identity.SignOut(ctx)
	a.store.ClearSession(ctx)
	if err != nil {
		f := newFailure("logout", err)
		a.logger.Warn(ctx, "remote sign out failed", "error", err)
		a.store.SetError(f.Error())
		return f
	}
	a.logger.Info(ctx, "logged out")
	return nil
}

func (a *authService) GetCurrentUser(ctx context.Context) (*models.UserProfile, error) {
	u, err := a.identity.GetUser(ctx)
	if errors.Is(err, remote.ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, newFailure("session check", err)
	}

	p, err := a.profileOf(ctx, u)
	if errors.Is(err, remote.ErrNotFound) {
		a.logger.Warn(ctx, "signed-in identity has no profile", "user_id", u.ID)
		return nil, nil
	}
	if err != nil {
		return nil, newFailure("session check", err)
	}
	return p, nil
}

// Refresh re-reads the signed-in user and publishes it.
func (a *authService) Refresh(ctx context.Context) (*models.UserProfile, error) {
	op := a.store.Begin()
	defer op.End()

	p, err := a.GetCurrentUser(ctx)
	if err != nil {
		return nil, a.fail(ctx, op, "refresh", err)
	}
	if err := a.commit(ctx, op, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (a *authService) SocialLoginStart(ctx context.Context, provider string) (string, error) {
	op := a.store.Begin()
	defer op.End()

	provider = strings.ToLower(strings.TrimSpace(provider))
	if !socialProviders[provider] {
		return "", a.fail(ctx, op, provider+" login", fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider))
	}

	redirect, err := a.identity.SignInWithOAuth(ctx, provider, a.cfg.OAuthReturnURL)
	if err != nil {
		return "", a.fail(ctx, op, provider+" login", err)
	}
	return redirect, nil
}

func (a *authService) SocialLoginComplete(ctx context.Context, params url.Values) (*models.UserProfile, error) {
	op := a.store.Begin()
	defer op.End()

	if len(params) > 0 {
		if _, err := a.identity.ExchangeOAuthCallback(ctx, params); err != nil {
			return nil, a.fail(ctx, op, "social login", err)
		}
	}

	s, err := a.identity.GetSession(ctx)
	if err != nil {
		return nil, a.fail(ctx, op, "social login", err)
	}
	if !s.Active() {
		a.logger.Info(ctx, "callback visited without a session")
		return nil, nil
	}
	if a.abandonSession(ctx, op) {
		return nil, ErrSuperseded
	}

	u := s.User
	if u == nil {
		if u, err = a.identity.GetUser(ctx); err != nil {
			return nil, a.fail(ctx, op, "social login", err)
		}
	}

	now := a.now()
	rec, err := a.records.GetProfile(ctx, u.ID)
	created := false
	switch {
	case errors.Is(err, remote.ErrNotFound):
		rec = models.NewProfileRecord(u, displayName(u), avatarOf(u), a.cfg.SignupBonus, now)
		if err := a.records.InsertProfile(ctx, rec); err != nil {
			return nil, a.fail(ctx, op, "social login", err)
		}
		a.creditBonus(ctx, op, u.ID, now)
		created = true
	case err != nil:
		return nil, a.fail(ctx, op, "social login", err)
	default:
		a.touchLastLogin(ctx, u.ID, now)
		rec.LastLogin = &now
	}

	p := models.NormalizeProfile(u, rec)
	if err := a.commitSession(ctx, op, p); err != nil {
		return nil, err
	}
	a.logger.Info(ctx, "social login succeeded", "user_id", u.ID, "provider", u.Provider(), "new_account", created)
	return p, nil
}

// displayName picks the name for a profile created from a provider login.
func displayName(u *models.IdentityUser) string {
	if n := u.MetadataString("name", "full_name", "user_name"); n != "" {
		return n
	}
	if i := strings.IndexByte(u.Email, '@'); i > 0 {
		return u.Email[:i]
	}
	return "user"
}

func avatarOf(u *models.IdentityUser) *string {
	if v := u.MetadataString("avatar_url", "picture"); v != "" {
		return &v
	}
	return nil
}

func (a *authService) UpdateProfile(ctx context.Context, patch models.ProfilePatch) error {
	op := a.store.Begin()
	defer op.End()

	u, err := a.currentIdentity(ctx)
	if err != nil {
		return a.fail(ctx, op, "profile update", err)
	}

	if !patch.Empty() {
		if err := a.records.UpdateProfile(ctx, u.ID, patch.Update(a.now())); err != nil {
			return a.fail(ctx, op, "profile update", err)
		}
	}

	if patch.Name != nil {
		_, err := a.identity.UpdateUser(ctx, models.UserAttributes{Data: map[string]any{"full_name": *patch.Name}})
		if err != nil {
			a.logger.Warn(ctx, "failed to mirror name into identity metadata", "user_id", u.ID, "error", err)
		}
	}

	p, err := a.profileOf(ctx, u)
	if err != nil {
		return a.fail(ctx, op, "profile update", err)
	}
	return a.commit(ctx, op, p)
}

func (a *authService) ResetPasswordRequest(ctx context.Context, email string) error {
	op := a.store.Begin()
	defer op.End()

	if err := a.identity.ResetPasswordForEmail(ctx, email, a.cfg.ResetReturnURL); err != nil {
		return a.fail(ctx, op, "password reset", err)
	}
	return nil
}

func (a *authService) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	op := a.store.Begin()
	defer op.End()

	u, err := a.currentIdentity(ctx)
	if err != nil {
		return a.fail(ctx, op, "password change", err)
	}

	if _, err := a.identity.SignInWithPassword(ctx, u.Email, oldPassword); err != nil {
		if errors.Is(err, remote.ErrInvalidCredentials) {
			f := &Failure{Action: "password change", Message: "current password is incorrect", Err: err}
			a.logger.Warn(ctx, "password change re-authentication failed", "user_id", u.ID)
			op.CommitError(f.Error())
			return f
		}
		return a.fail(ctx, op, "password change", err)
	}
	if a.abandonSession(ctx, op) {
		return ErrSuperseded
	}

	if _, err := a.identity.UpdateUser(ctx, models.UserAttributes{Password: newPassword}); err != nil {
		return a.fail(ctx, op, "password change", err)
	}
	a.logger.Info(ctx, "password changed", "user_id", u.ID)
	return nil
}

func (a *authService) VerifyEmail(ctx context.Context) (bool, error) {
	u, err := a.currentIdentity(ctx)
	if err != nil {
		return false, newFailure("email verification", err)
	}
	return u.Confirmed(), nil
}

func (a *authService) UploadAvatar(ctx context.Context, filename string, body io.Reader) (string, error) {
	op := a.store.Begin()
	defer op.End()

	if a.avatars == nil {
		return "", a.fail(ctx, op, "avatar upload", ErrStorageDisabled)
	}
	u, err := a.currentIdentity(ctx)
	if err != nil {
		return "", a.fail(ctx, op, "avatar upload", err)
	}

	link, err := a.avatars.UploadAvatar(ctx, u.ID, filename, body)
	if err != nil {
		return "", a.fail(ctx, op, "avatar upload", err)
	}
	return link, nil
}
