package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
	"github.com/dmitrijs2005/chatwithyou/internal/client/session"
	"github.com/dmitrijs2005/chatwithyou/internal/logging"
)

// deps are the collaborators every service operation uses.
type deps struct {
	identity remote.Identity
	records  remote.Records
	store    *session.Store
	logger   logging.Logger
	now      func() time.Time
}

func newDeps(identity remote.Identity, records remote.Records, store *session.Store, logger logging.Logger, component string) deps {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return deps{
		identity: identity,
		records:  records,
		store:    store,
		logger:   logger.With("component", component),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// fail records err as the store's last error (if op is still current) and
// returns it as a *Failure.
func (d *deps) fail(ctx context.Context, op *session.Op, action string, err error) error {
	f := newFailure(action, err)
	d.logger.Warn(ctx, action+" failed", "error", err)
	op.CommitError(f.Error())
	return f
}

func (d *deps) commit(ctx context.Context, op *session.Op, p *models.UserProfile) error {
	if !op.CommitUser(ctx, p) {
		return ErrSuperseded
	}
	return nil
}

// commitSession publishes the user of an operation that established a
// remote session. If a logout overtook the operation, the session it opened
// is ended too, so the logout sticks.
func (d *deps) commitSession(ctx context.Context, op *session.Op, p *models.UserProfile) error {
	if op.CommitUser(ctx, p) {
		return nil
	}
	d.abandonSession(ctx, op)
	return ErrSuperseded
}

// abandonSession ends the remote session opened by op when a logout
// happened since op began. It reports whether it did.
func (d *deps) abandonSession(ctx context.Context, op *session.Op) bool {
	if !op.LoggedOut() {
		return false
	}
	d.logger.Info(ctx, "logout overtook sign-in, ending the new session")
	d.dropSession(ctx)
	return true
}

// profileOf loads the Users row of u and merges it with the identity.
func (d *deps) profileOf(ctx context.Context, u *models.IdentityUser) (*models.UserProfile, error) {
	r, err := d.records.GetProfile(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return models.NormalizeProfile(u, r), nil
}

// currentIdentity returns the signed-in identity, mapping "no session" to
// ErrNotAuthenticated.
func (d *deps) currentIdentity(ctx context.Context) (*models.IdentityUser, error) {
	u, err := d.identity.GetUser(ctx)
	if errors.Is(err, remote.ErrNoSession) {
		return nil, ErrNotAuthenticated
	}
	return u, err
}

func (d *deps) touchLastLogin(ctx context.Context, id string, now time.Time) {
	if err := d.records.UpdateProfile(ctx, id, models.ProfileUpdate{LastLogin: &now}); err != nil {
		d.logger.Warn(ctx, "failed to update last login", "user_id", id, "error", err)
	}
}

// dropSession ends a remote session that could not be completed locally.
func (d *deps) dropSession(ctx context.Context) {
	if err := d.identity.SignOut(ctx); err != nil {
		d.logger.Warn(ctx, "failed to sign out incomplete session", "error", err)
	}
}
