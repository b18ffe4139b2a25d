package remotetest

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignIn_ChecksPassword(t *testing.T) {
	b := New()
	ctx := context.Background()
	b.SeedUser("ann@example.com", "secret", "Ann", 0)

	_, err := b.SignInWithPassword(ctx, "ann@example.com", "wrong")
	require.ErrorIs(t, err, remote.ErrInvalidCredentials)

	s, err := b.SignInWithPassword(ctx, "ann@example.com", "secret")
	require.NoError(t, err)
	assert.True(t, s.Active())

	u, err := b.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)
}

func TestSignUp_DuplicateAndPendingConfirmation(t *testing.T) {
	b := New()
	b.AutoConfirm = false
	ctx := context.Background()

	s, err := b.SignUp(ctx, "ann@example.com", "secret", nil)
	require.NoError(t, err)
	assert.False(t, s.Active())
	assert.Nil(t, b.Session())

	_, err = b.SignUp(ctx, "ann@example.com", "other", nil)
	require.ErrorIs(t, err, remote.ErrConflict)
}

func TestDeleteUser_EndsItsSession(t *testing.T) {
	b := New()
	ctx := context.Background()

	s, err := b.SignUp(ctx, "ann@example.com", "secret", nil)
	require.NoError(t, err)
	require.NoError(t, b.DeleteUser(ctx, s.User.ID))

	assert.False(t, b.HasAccount("ann@example.com"))
	assert.Nil(t, b.Session())
	_, err = b.SignInWithPassword(ctx, "ann@example.com", "secret")
	assert.ErrorIs(t, err, remote.ErrInvalidCredentials)
}

func TestFailOn(t *testing.T) {
	b := New()
	boom := errors.New("boom")
	b.FailOn("InsertProfile", boom)

	err := b.InsertProfile(context.Background(), &models.ProfileRecord{ID: "u1"})
	require.ErrorIs(t, err, boom)
	_, ok := b.Profile("u1")
	assert.False(t, ok)

	b.ClearFailures()
	require.NoError(t, b.InsertProfile(context.Background(), &models.ProfileRecord{ID: "u1"}))
	assert.Equal(t, 2, b.Calls("InsertProfile"))
}

func TestBlock_HoldsOneCall(t *testing.T) {
	b := New()
	b.SeedUser("ann@example.com", "secret", "Ann", 0)
	gate := b.Block("SignInWithPassword")

	done := make(chan error, 1)
	go func() {
		_, err := b.SignInWithPassword(context.Background(), "ann@example.com", "secret")
		done <- err
	}()

	<-gate.Entered
	select {
	case <-done:
		t.Fatal("call finished before release")
	case <-time.After(20 * time.Millisecond):
	}

	gate.Release()
	require.NoError(t, <-done)

	// the gate is single use
	_, err := b.SignInWithPassword(context.Background(), "ann@example.com", "secret")
	require.NoError(t, err)
}

func TestBlock_ContextCancel(t *testing.T) {
	b := New()
	b.Block("GetSession")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.GetSession(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOAuthExchange(t *testing.T) {
	b := New()
	ctx := context.Background()
	b.AuthorizeOAuth("code-1", "bob@example.com", models.ProviderGoogle, map[string]any{"full_name": "Bob"})

	s, err := b.ExchangeOAuthCallback(ctx, url.Values{"code": {"code-1"}})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGoogle, s.User.Provider())
	assert.True(t, s.User.Confirmed())

	_, err = b.ExchangeOAuthCallback(ctx, url.Values{"code": {"code-1"}})
	assert.ErrorIs(t, err, remote.ErrNotFound, "codes are single use")

	s, err = b.ExchangeOAuthCallback(ctx, url.Values{})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLedger_NewestFirst(t *testing.T) {
	b := New()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, b.InsertLedgerEntry(ctx, models.LedgerEntry{UserID: "u1", Amount: 10, CreatedAt: t0}))
	require.NoError(t, b.InsertLedgerEntry(ctx, models.LedgerEntry{UserID: "u1", Amount: 5, CreatedAt: t0.Add(time.Hour)}))
	require.NoError(t, b.InsertLedgerEntry(ctx, models.LedgerEntry{UserID: "u2", Amount: 1, CreatedAt: t0}))

	got, err := b.ListLedgerEntries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(5), got[0].Amount)
	assert.NotEmpty(t, got[0].ID)
}
