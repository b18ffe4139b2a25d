package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnavailable        = errors.New("service unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrNoSession          = errors.New("no active session")
)

// APIError is a non-2xx answer of the identity or record service.
// errors.Is matches it against the sentinel errors above.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", msg, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", msg, e.Status)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "invalid_credentials", "invalid_grant":
		return ErrInvalidCredentials
	case "user_already_exists", "email_exists", "23505":
		return ErrConflict
	case "PGRST116", "user_not_found":
		return ErrNotFound
	case "session_not_found", "refresh_token_not_found":
		return ErrNoSession
	case "bad_jwt", "no_authorization", "not_admin", "42501":
		return ErrUnauthorized
	}

	switch {
	case e.Status == http.StatusTooManyRequests, e.Status >= 500:
		return ErrUnavailable
	case e.Status == http.StatusUnauthorized, e.Status == http.StatusForbidden:
		return ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusConflict:
		return ErrConflict
	case e.Status == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Message), "invalid login"):
		return ErrInvalidCredentials
	}
	return nil
}

// errorBody covers the error shapes of both services: GoTrue uses
// msg/error_code or error/error_description, PostgREST code/message.
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (b errorBody) apiError(status int) *APIError {
	e := &APIError{Status: status}

	switch {
	case b.ErrorCode != "":
		e.Code = b.ErrorCode
	case b.Error != "":
		e.Code = b.Error
	default:
		if s, ok := b.Code.(string); ok {
			e.Code = s
		}
	}

	for _, m := range []string{b.Msg, b.Message, b.ErrorDescription} {
		if m != "" {
			e.Message = m
			break
		}
	}
	return e
}
