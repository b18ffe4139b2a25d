package services

import (
	"errors"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported login provider")
	ErrNotAuthenticated    = errors.New("not signed in")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnknownPackage      = errors.New("unknown credit package")
	ErrStorageDisabled     = errors.New("avatar storage is not configured")
	// ErrSuperseded is returned when a newer operation or a logout finished
	// first; the result was discarded.
	ErrSuperseded = errors.New("superseded by a newer operation")
)

// Failure is the error every service operation returns. Error() is a
// message fit for showing to the user; the cause stays reachable through
// errors.Is and errors.As.
type Failure struct {
	Action  string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return f.Action + " failed: " + f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func newFailure(action string, err error) *Failure {
	return &Failure{Action: action, Message: describe(err), Err: err}
}

// describe maps an error to short user-facing text.
func describe(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, remote.ErrNoSession):
		return "you are not signed in"
	case errors.Is(err, remote.ErrInvalidCredentials):
		return "invalid email or password"
	case errors.Is(err, remote.ErrConflict):
		return "an account with this email already exists"
	case errors.Is(err, remote.ErrUnavailable):
		return "service unavailable, please try again later"
	case errors.Is(err, remote.ErrUnauthorized):
		return "permission denied"
	case errors.Is(err, remote.ErrNotFound):
		return "account record not found"
	case errors.Is(err, ErrUnsupportedProvider),
		errors.Is(err, ErrInsufficientCredits),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrUnknownPackage),
		errors.Is(err, ErrStorageDisabled):
		return err.Error()
	}

	var apiErr *remote.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		r, size := utf8.DecodeRuneInString(apiErr.Message)
		return string(unicode.ToLower(r)) + apiErr.Message[size:]
	}
	return "something went wrong"
}
