package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeProfile_Fallbacks(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	u := &IdentityUser{ID: "u1", Email: "a@b.c", CreatedAt: created.Add(time.Hour)}
	r := &ProfileRecord{ID: "u1", Username: "legacy", CreatedAt: &created}

	p := NormalizeProfile(u, r)

	assert.Equal(t, "legacy", p.Name)
	assert.Equal(t, created, p.RegistrationDate)
	assert.Equal(t, AccountFree, p.AccountType)
	assert.Equal(t, int64(0), p.Credits)
	assert.False(t, p.IsVerified)
	assert.Equal(t, ProviderEmail, p.AuthProvider)
	require.NoError(t, p.Validate())
}

func TestNormalizeProfile_IdentityWins(t *testing.T) {
	confirmed := time.Now()
	credits := int64(42)
	u := &IdentityUser{
		ID: "u1", Email: "real@b.c", EmailConfirmedAt: &confirmed,
		AppMetadata: AppMetadata{Provider: ProviderGoogle},
	}
	r := &ProfileRecord{
		ID: "u1", Email: "stale@b.c", Name: "Ann", Credits: &credits,
		AccountType: AccountPremium, AuthProvider: "email",
	}

	p := NormalizeProfile(u, r)

	assert.Equal(t, "real@b.c", p.Email)
	assert.Equal(t, "Ann", p.Name)
	assert.Equal(t, int64(42), p.Credits)
	assert.Equal(t, AccountPremium, p.AccountType)
	assert.True(t, p.IsVerified)
	assert.Equal(t, ProviderGoogle, p.AuthProvider)
}

func TestNewProfileRecord(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	u := &IdentityUser{ID: "u1", Email: "a@b.c", AppMetadata: AppMetadata{Provider: ProviderApple}}

	r := NewProfileRecord(u, "Ann", nil, 10, now)

	assert.Equal(t, AccountFree, r.AccountType)
	require.NotNil(t, r.Credits)
	assert.Equal(t, int64(10), *r.Credits)
	assert.Equal(t, now, *r.RegistrationDate)
	assert.Equal(t, now, *r.LastLogin)
	assert.Equal(t, ProviderApple, r.AuthProvider)
}
