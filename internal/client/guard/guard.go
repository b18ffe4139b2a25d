// Package guard decides, per navigation, whether a route is rendered or the
// user is redirected, based on the session state and the route's policy.
// It holds no state of its own.
package guard

import (
	"net/url"
	"strings"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
)

type Policy int

const (
	Public Policy = iota
	RequiresAuth
	RequiresAnonymous
)

func (p Policy) String() string {
	switch p {
	case RequiresAuth:
		return "requires-auth"
	case RequiresAnonymous:
		return "requires-anonymous"
	default:
		return "public"
	}
}

type Action int

const (
	// Wait means the initial session check is still running; show a
	// neutral indicator and decide again later.
	Wait Action = iota
	Render
	Redirect
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "wait"
	}
}

// Decision is the outcome of a navigation. For Render, Target is the route
// to show; for Redirect, the route to go to instead. From carries the
// originally requested location on a redirect to the login route.
type Decision struct {
	Action  Action
	Target  string
	From    string
	Unknown bool
}

const (
	DefaultLoginPath   = "/login"
	DefaultLandingPath = "/chat-list"
	CallbackPath       = "/auth/callback"
)

// DefaultRoutes is the app's route table.
func DefaultRoutes() map[string]Policy {
	return map[string]Policy{
		"/login":                 RequiresAnonymous,
		"/register":              RequiresAnonymous,
		"/reset-password":        Public,
		CallbackPath:             Public,
		"/onboarding":            RequiresAuth,
		"/chat-list":             RequiresAuth,
		"/contacts":              RequiresAuth,
		"/discover":              RequiresAuth,
		"/profile":               RequiresAuth,
		"/chat":                  RequiresAuth,
		"/ai-assistant-settings": RequiresAuth,
		"/ai-assistant-market":   RequiresAuth,
		"/create-ai-assistant":   RequiresAuth,
		"/edit-ai-assistant":     RequiresAuth,
		"/my-ai-assistants":      RequiresAuth,
		"/ai-assistant-setup":    RequiresAuth,
		"/add-contact":           RequiresAuth,
		"/settings":              RequiresAuth,
		"/edit-profile":          RequiresAuth,
		"/change-password":       RequiresAuth,
		"/notification-settings": RequiresAuth,
		"/privacy-settings":      RequiresAuth,
		"/billing-subscription":  RequiresAuth,
		"/subscription-plans":    RequiresAuth,
		"/buy-credits":           RequiresAuth,
		"/credits":               RequiresAuth,
		"/offline-queue":         RequiresAuth,
	}
}

type Guard struct {
	LoginPath   string
	LandingPath string
	Routes      map[string]Policy
	// Aliases redirect one path to another regardless of session state.
	Aliases map[string]string
}

func New() *Guard {
	return &Guard{
		LoginPath:   DefaultLoginPath,
		LandingPath: DefaultLandingPath,
		Routes:      DefaultRoutes(),
		Aliases:     map[string]string{"/": DefaultLandingPath},
	}
}

// Decide applies policy to state for a navigation to requested.
func (g *Guard) Decide(state models.SessionState, policy Policy, requested string) Decision {
	if state.IsLoading {
		return Decision{Action: Wait, Target: requested}
	}

	switch policy {
	case RequiresAuth:
		if state.User == nil {
			return Decision{Action: Redirect, Target: g.LoginPath, From: requested}
		}
	case RequiresAnonymous:
		if state.User != nil {
			return Decision{Action: Redirect, Target: g.LandingPath}
		}
	}
	return Decision{Action: Render, Target: requested}
}

// Policy looks up the policy of path. Unknown paths are public.
func (g *Guard) Policy(path string) (Policy, bool) {
	p, ok := g.Routes[Clean(path)]
	return p, ok
}

// Navigate resolves path against the route table and decides. Unknown
// routes render as not found.
func (g *Guard) Navigate(state models.SessionState, path string) Decision {
	requested := path
	clean := Clean(path)

	if to, ok := g.Aliases[clean]; ok {
		return Decision{Action: Redirect, Target: to}
	}

	policy, known := g.Routes[clean]
	d := g.Decide(state, policy, requested)
	d.Unknown = !known && d.Action == Render
	return d
}

// AfterLogin returns where to go once the user has signed in: back to from
// when it names a route an authenticated user may see, otherwise the
// landing route.
func (g *Guard) AfterLogin(from string) string {
	if from == "" {
		return g.LandingPath
	}
	if p, ok := g.Policy(from); !ok || p == RequiresAnonymous {
		return g.LandingPath
	}
	return from
}

// Clean strips query, fragment and trailing slashes from a location.
func Clean(path string) string {
	if u, err := url.Parse(path); err == nil {
		path = u.Path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
