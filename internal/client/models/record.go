package models

import "time"

// ProfileRecord is a row of the Users table as the record service returns
// it. Older rows may only carry username/created_at, so most columns are
// optional here and resolved by NormalizeProfile.
type ProfileRecord struct {
	ID               string      `json:"id"`
	Email            string      `json:"email"`
	Name             string      `json:"name,omitempty"`
	Username         string      `json:"username,omitempty"`
	AvatarURL        *string     `json:"avatar_url,omitempty"`
	RegistrationDate *time.Time  `json:"registration_date,omitempty"`
	CreatedAt        *time.Time  `json:"created_at,omitempty"`
	LastLogin        *time.Time  `json:"last_login,omitempty"`
	AccountType      AccountType `json:"account_type,omitempty"`
	IsVerified       bool        `json:"is_verified"`
	Credits          *int64      `json:"credits,omitempty"`
	AuthProvider     string      `json:"auth_provider,omitempty"`
}

// NewProfileRecord builds the row inserted for a fresh account.
func NewProfileRecord(u *IdentityUser, name string, avatar *string, credits int64, now time.Time) *ProfileRecord {
	return &ProfileRecord{
		ID:               u.ID,
		Email:            u.Email,
		Name:             name,
		AvatarURL:        avatar,
		RegistrationDate: &now,
		LastLogin:        &now,
		AccountType:      AccountFree,
		IsVerified:       u.Confirmed(),
		Credits:          &credits,
		AuthProvider:     u.Provider(),
	}
}

// NormalizeProfile merges the identity and its Users row into the single
// profile shape the client works with. Identity-side facts (id, email,
// verification, provider) win over the row.
func NormalizeProfile(u *IdentityUser, r *ProfileRecord) *UserProfile {
	p := &UserProfile{
		ID:           u.ID,
		Email:        u.Email,
		AccountType:  AccountFree,
		IsVerified:   u.Confirmed(),
		AuthProvider: u.Provider(),
	}
	if p.Email == "" {
		p.Email = r.Email
	}

	p.Name = r.Name
	if p.Name == "" {
		p.Name = r.Username
	}

	switch {
	case r.RegistrationDate != nil:
		p.RegistrationDate = *r.RegistrationDate
	case r.CreatedAt != nil:
		p.RegistrationDate = *r.CreatedAt
	default:
		p.RegistrationDate = u.CreatedAt
	}

	if r.AvatarURL != nil {
		v := *r.AvatarURL
		p.AvatarURL = &v
	}
	if r.LastLogin != nil {
		v := *r.LastLogin
		p.LastLogin = &v
	}
	if r.AccountType.Valid() {
		p.AccountType = r.AccountType
	}
	if r.Credits != nil {
		p.Credits = *r.Credits
	}
	return p
}
