package models

// SessionState is an immutable snapshot of the session store.
//
// User is either a complete profile or nil; LastError is empty when there is
// nothing to show.
type SessionState struct {
	User      *UserProfile
	IsLoading bool
	LastError string
}

// Authenticated reports whether a user is present.
func (s SessionState) Authenticated() bool {
	return s.User != nil
}
