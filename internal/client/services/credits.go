package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
	"github.com/dmitrijs2005/chatwithyou/internal/client/session"
	"github.com/dmitrijs2005/chatwithyou/internal/logging"
)

// CreditsService manages the signed-in user's credits balance and its
// history.
type CreditsService interface {
	// Balance re-reads the profile, publishes it and returns its balance.
	Balance(ctx context.Context) (int64, error)
	// History returns ledger entries, newest first.
	History(ctx context.Context) ([]models.LedgerEntry, error)
	Packages() []models.CreditPackage
	// Purchase credits a package. Payment is simulated.
	Purchase(ctx context.Context, packageID int) (*models.UserProfile, error)
	Spend(ctx context.Context, amount int64, description string) (*models.UserProfile, error)
}

type creditsService struct {
	deps
}

func NewCreditsService(identity remote.Identity, records remote.Records, store *session.Store, logger logging.Logger) CreditsService {
	return &creditsService{deps: newDeps(identity, records, store, logger, "credits")}
}

func (c *creditsService) Packages() []models.CreditPackage {
	out := make([]models.CreditPackage, len(models.CreditPackages))
	copy(out, models.CreditPackages)
	return out
}

func (c *creditsService) Balance(ctx context.Context) (int64, error) {
	op := c.store.Begin()
	defer op.End()

	u, err := c.currentIdentity(ctx)
	if err != nil {
		return 0, c.fail(ctx, op, "balance", err)
	}
	p, err := c.profileOf(ctx, u)
	if err != nil {
		return 0, c.fail(ctx, op, "balance", err)
	}
	if err := c.commit(ctx, op, p); err != nil {
		return 0, err
	}
	return p.Balance(), nil
}

func (c *creditsService) History(ctx context.Context) ([]models.LedgerEntry, error) {
	u, err := c.currentIdentity(ctx)
	if err != nil {
		return nil, newFailure("credit history", err)
	}
	entries, err := c.records.ListLedgerEntries(ctx, u.ID)
	if err != nil {
		return nil, newFailure("credit history", err)
	}
	return entries, nil
}

func (c *creditsService) Purchase(ctx context.Context, packageID int) (*models.UserProfile, error) {
	pkg, ok := models.FindCreditPackage(packageID)
	if !ok {
		return nil, newFailure("purchase", fmt.Errorf("%w: %d", ErrUnknownPackage, packageID))
	}
	desc := fmt.Sprintf("Purchased %d credits", pkg.Credits)
	return c.apply(ctx, "purchase", pkg.Credits, models.LedgerEarn, desc)
}

func (c *creditsService) Spend(ctx context.Context, amount int64, description string) (*models.UserProfile, error) {
	if amount <= 0 {
		return nil, newFailure("spend", ErrInvalidAmount)
	}
	return c.apply(ctx, "spend", amount, models.LedgerSpend, description)
}

// apply changes the tally by amount in the direction of action and appends
// the matching ledger row. The tally is read, then written; concurrent
// changes from another device may be lost.
func (c *creditsService) apply(ctx context.Context, action string, amount int64, kind models.LedgerAction, desc string) (*models.UserProfile, error) {
	op := c.store.Begin()
	defer op.End()

	u, err := c.currentIdentity(ctx)
	if err != nil {
		return nil, c.fail(ctx, op, action, err)
	}
	p, err := c.profileOf(ctx, u)
	if err != nil {
		return nil, c.fail(ctx, op, action, err)
	}

	next := p.Balance() + amount
	if kind == models.LedgerSpend {
		if p.Balance() < amount {
			return nil, c.fail(ctx, op, action, ErrInsufficientCredits)
		}
		next = p.Balance() - amount
	}

	now := c.now()
	if err := c.records.UpdateProfile(ctx, u.ID, models.ProfileUpdate{Credits: &next, UpdatedAt: &now}); err != nil {
		return nil, c.fail(ctx, op, action, err)
	}
	p.Credits = next

	// From here on the tally has changed; the ledger row is written even if
	// a newer operation keeps the result from being published.
	err = c.records.InsertLedgerEntry(ctx, models.LedgerEntry{
		UserID:      u.ID,
		Amount:      amount,
		ActionType:  kind,
		Description: desc,
		CreatedAt:   now,
	})
	if err != nil {
		c.logger.Error(ctx, "failed to record ledger entry", "user_id", u.ID, "action", kind, "error", err)
		op.CommitError("credits updated, but the history entry could not be recorded")
	}

	if !op.CommitUser(ctx, p) {
		c.logger.Debug(ctx, "credits changed while a newer operation ran, not published", "user_id", u.ID)
	}

	c.logger.Info(ctx, "credits changed", "user_id", u.ID, "action", kind, "amount", amount, "balance", next)
	return p, nil
}

