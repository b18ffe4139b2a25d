package models

import "time"

// AppMetadata is the provider-controlled part of an identity.
type AppMetadata struct {
	Provider  string   `json:"provider,omitempty"`
	Providers []string `json:"providers,omitempty"`
}

// IdentityUser is the account as the identity service reports it.
type IdentityUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	AppMetadata      AppMetadata    `json:"app_metadata"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// Confirmed reports whether the email/contact method was verified.
func (u *IdentityUser) Confirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil && !u.EmailConfirmedAt.IsZero()
}

// Provider returns the provider tag, defaulting to email.
func (u *IdentityUser) Provider() string {
	if u == nil || u.AppMetadata.Provider == "" {
		return ProviderEmail
	}
	return u.AppMetadata.Provider
}

// MetadataString returns the first non-empty string found under keys.
func (u *IdentityUser) MetadataString(keys ...string) string {
	if u == nil {
		return ""
	}
	for _, k := range keys {
		if v, ok := u.UserMetadata[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// AuthSession is an established session with the identity service.
type AuthSession struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"`
	ExpiresIn    int64         `json:"expires_in,omitempty"`
	ExpiresAt    int64         `json:"expires_at,omitempty"`
	User         *IdentityUser `json:"user"`
}

// Active reports whether the session carries an access token. A sign-up that
// still awaits email confirmation yields a user but no active session.
func (s *AuthSession) Active() bool {
	return s != nil && s.AccessToken != ""
}

// Expired reports whether the access token expires within leeway of now.
func (s *AuthSession) Expired(now time.Time, leeway time.Duration) bool {
	if s == nil || s.ExpiresAt == 0 {
		return false
	}
	return !now.Add(leeway).Before(time.Unix(s.ExpiresAt, 0))
}

// UserAttributes are the identity-side fields that can be changed by the
// signed-in user.
type UserAttributes struct {
	Password string         `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}
