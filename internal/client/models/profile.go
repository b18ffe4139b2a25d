// Package models defines the client-side records shared by the session
// store, the auth services and the remote clients.
package models

import (
	"errors"
	"time"
)

// AccountType is the billing tier of an account.
type AccountType string

const (
	AccountFree     AccountType = "free"
	AccountPremium  AccountType = "premium"
	AccountBusiness AccountType = "business"
)

// Valid reports whether t is one of the known tiers.
func (t AccountType) Valid() bool {
	switch t {
	case AccountFree, AccountPremium, AccountBusiness:
		return true
	}
	return false
}

// Provider tags describing how an identity authenticated.
const (
	ProviderEmail    = "email"
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
	ProviderApple    = "apple"
)

var ErrIncompleteProfile = errors.New("profile must have id and email")

// UserProfile is the canonical identity record held on the client.
//
// ID and Email are assigned at account creation and never change. Credits may
// be missing in a stored record; it then decodes as zero.
type UserProfile struct {
	ID               string      `json:"id"`
	Email            string      `json:"email"`
	Name             string      `json:"name"`
	AvatarURL        *string     `json:"avatar_url,omitempty"`
	RegistrationDate time.Time   `json:"registration_date"`
	LastLogin        *time.Time  `json:"last_login,omitempty"`
	AccountType      AccountType `json:"account_type"`
	IsVerified       bool        `json:"is_verified"`
	Credits          int64       `json:"credits"`
	AuthProvider     string      `json:"auth_provider,omitempty"`
}

// Validate rejects partially populated profiles. The session store never
// publishes a profile that fails this check.
func (p *UserProfile) Validate() error {
	if p == nil || p.ID == "" || p.Email == "" {
		return ErrIncompleteProfile
	}
	return nil
}

// Balance returns the credits balance as shown to the user; never negative.
func (p *UserProfile) Balance() int64 {
	if p == nil || p.Credits < 0 {
		return 0
	}
	return p.Credits
}

// Clone returns a deep copy so snapshots handed to listeners cannot be
// mutated behind the store's back.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	if p.AvatarURL != nil {
		v := *p.AvatarURL
		c.AvatarURL = &v
	}
	if p.LastLogin != nil {
		v := *p.LastLogin
		c.LastLogin = &v
	}
	return &c
}

// ProfilePatch carries the fields a user may change on their own profile.
// It deliberately has no ID or Email.
type ProfilePatch struct {
	Name      *string
	AvatarURL *string
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.AvatarURL == nil
}

// ProfileUpdate is the column set sent to the record service on update.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Name      *string    `json:"name,omitempty"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	Credits   *int64     `json:"credits,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Update converts the patch into a record update, dropping nothing but
// also adding nothing the user is not allowed to touch.
func (p ProfilePatch) Update(now time.Time) ProfileUpdate {
	return ProfileUpdate{Name: p.Name, AvatarURL: p.AvatarURL, UpdatedAt: &now}
}

// PatchFromFields builds a patch from loosely typed input such as
// "name=Alice". Keys other than name and avatar_url are ignored; an empty
// avatar_url clears the avatar.
func PatchFromFields(fields map[string]string) ProfilePatch {
	var p ProfilePatch
	if v, ok := fields["name"]; ok {
		p.Name = &v
	}
	for _, k := range []string{"avatar_url", "avatarUrl", "avatar"} {
		if v, ok := fields[k]; ok {
			p.AvatarURL = &v
			break
		}
	}
	return p
}
