package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/chatwithyou/internal/client/cache"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote/remotetest"
	"github.com/dmitrijs2005/chatwithyou/internal/client/services"
	"github.com/dmitrijs2005/chatwithyou/internal/client/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	backend *remotetest.Backend
	cache   *cache.Cache
	store   *session.Store
	auth    services.AuthService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := remotetest.New()
	c := cache.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"), nil)
	require.True(t, c.Available())
	t.Cleanup(func() { _ = c.Close() })

	st := session.New(c, nil)
	return &harness{
		backend: b,
		cache:   c,
		store:   st,
		auth:    services.NewAuthService(b, b, st, nil, services.AuthConfig{SignupBonus: 10}, nil),
	}
}

// run feeds script to a fresh App and returns what it printed.
func (h *harness) run(t *testing.T, script string) string {
	t.Helper()
	var out bytes.Buffer
	b := h.backend
	a := New(Deps{
		Auth:    h.auth,
		Credits: services.NewCreditsService(b, b, h.store, nil),
		Store:   h.store,
		Cache:   h.cache,
		In:      strings.NewReader(script),
		Out:     &out,
	})
	require.NoError(t, a.Run(context.Background()))
	return out.String()
}

// stubPasswords makes GetPassword return pw in order.
func stubPasswords(t *testing.T, pw ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	readPassword = func(int) ([]byte, error) {
		if len(pw) == 0 {
			return nil, errors.New("no more passwords")
		}
		p := pw[0]
		pw = pw[1:]
		return []byte(p), nil
	}
}

func TestProtectedCommand_LoginThenResumes(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedUser("ann@example.com", "secret1", "Ann", 42)
	stubPasswords(t, "secret1")

	out := h.run(t, "credits\nann@example.com\n")

	assert.Contains(t, out, "Please log in first.")
	assert.Contains(t, out, "Login successful.")
	assert.Contains(t, out, "Balance: 42 credits")
	assert.Less(t, strings.Index(out, "Login successful."), strings.Index(out, "Balance: 42 credits"))
}

func TestProtectedCommand_FailedLoginKeepsThenAbandonsReturn(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedUser("ann@example.com", "secret1", "Ann", 42)
	stubPasswords(t, "wrong", "secret1", "secret1")

	// The failed login keeps the pending command; the retry resumes it.
	out := h.run(t, "credits\nann@example.com\nlogin ann@example.com\n")
	assert.Contains(t, out, "Error: login failed: invalid email or password")
	assert.Contains(t, out, "Balance: 42 credits")

	require.NoError(t, h.auth.Logout(context.Background()))

	// Anything else run in between drops it.
	stubPasswords(t, "wrong", "secret1")
	out = h.run(t, "credits\nann@example.com\nhelp\nlogin ann@example.com\n")
	assert.Contains(t, out, "Login successful.")
	assert.NotContains(t, out, "Balance:")
}

func TestAnonymousOnlyCommand_SignedIn(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedUser("ann@example.com", "secret1", "Ann", 7)
	require.NoError(t, h.auth.Login(context.Background(), "ann@example.com", "secret1"))

	out := h.run(t, "register\n")

	assert.Contains(t, out, "Signed in as ann@example.com.")
	assert.Contains(t, out, "You are already signed in.")
	assert.Contains(t, out, "Hi Ann! You have 7 credits.")
	assert.NotContains(t, out, "Enter your name")
}

func TestLanding_ResumedAfterLogin(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedUser("ann@example.com", "secret1", "Ann", 3)
	stubPasswords(t, "secret1")

	out := h.run(t, "chats\nann@example.com\n")

	assert.Contains(t, out, "Please log in first.")
	assert.Contains(t, out, "Hi Ann! You have 3 credits. Pending messages: 0.")
}

func TestHelp_FiltersByPolicy(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedUser("ann@example.com", "secret1", "Ann", 0)

	out := h.run(t, "help\n")
	assert.Contains(t, out, "  login")
	assert.Contains(t, out, "  reset-password")
	assert.NotContains(t, out, "  credits")
	assert.Contains(t, out, "Other commands need you to log in first.")

	require.NoError(t, h.auth.Login(context.Background(), "ann@example.com", "secret1"))
	out = h.run(t, "?\n")
	assert.Contains(t, out, "  credits")
	assert.Contains(t, out, "  logout")
	assert.NotContains(t, out, "  register")
}

func TestUnknownCommandAndExit(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "dance\nexit\nhelp\n")

	assert.Contains(t, out, "Unknown command: dance")
	assert.Contains(t, out, "Bye!")
	assert.NotContains(t, out, "Available commands:")
}

func TestRegister_PasswordMismatch(t *testing.T) {
	h := newHarness(t)
	stubPasswords(t, "secret1", "secret2")

	out := h.run(t, "register bob@example.com\nBob\n")

	assert.Contains(t, out, "Error: passwords do not match")
	assert.False(t, h.backend.HasAccount("bob@example.com"))
}

func TestRegister_GrantsBonus(t *testing.T) {
	h := newHarness(t)
	stubPasswords(t, "secret1", "secret1")

	out := h.run(t, "register bob@example.com\nBob\ncredits\n")

	assert.Contains(t, out, "Welcome, Bob! You start with 10 credits.")
	assert.Contains(t, out, "+10")
}

func TestEditProfile_IgnoresEmail(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedUser("ann@example.com", "secret1", "Ann", 0)
	require.NoError(t, h.auth.Login(context.Background(), "ann@example.com", "secret1"))

	out := h.run(t, "edit-profile name=Annie email=evil@example.com\n")

	assert.Contains(t, out, "Profile updated.")
	u := h.store.State().User
	require.NotNil(t, u)
	assert.Equal(t, "Annie", u.Name)
	assert.Equal(t, "ann@example.com", u.Email)
}

func TestSpendAndBuy(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedUser("ann@example.com", "secret1", "Ann", 5)
	require.NoError(t, h.auth.Login(context.Background(), "ann@example.com", "secret1"))

	out := h.run(t, "spend 10 image\nspend 3 chat\nbuy 1\n")

	assert.Contains(t, out, "Error: spend failed: insufficient credits")
	assert.Contains(t, out, "Balance: 2 credits")
	assert.Contains(t, out, "Done. Balance: 102 credits")
}

func TestSettingsAndOfflineQueue(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedUser("ann@example.com", "secret1", "Ann", 0)
	require.NoError(t, h.auth.Login(context.Background(), "ann@example.com", "secret1"))

	out := h.run(t, "settings theme=dark sound=false\nqueue c1\nhello\nthere\n\nchats\nflush\n")

	assert.Contains(t, out, `theme = "dark"`)
	assert.Contains(t, out, "sound = false")
	assert.Contains(t, out, "Pending messages: 1.")
	assert.Contains(t, out, "c1: hello\nthere")
	assert.Equal(t, 0, h.cache.PendingOfflineMessages(context.Background()))
	assert.False(t, cache.ReadSetting(context.Background(), h.cache, "sound", true))

	out = h.run(t, "settings -theme\n")
	assert.NotContains(t, out, "theme")
}

func TestLogout_ClearsSessionAndIsNotResumed(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedUser("ann@example.com", "secret1", "Ann", 0)
	require.NoError(t, h.auth.Login(context.Background(), "ann@example.com", "secret1"))

	out := h.run(t, "logout\n")
	assert.Contains(t, out, "Logged out.")
	assert.Nil(t, h.store.State().User)
	_, ok := h.cache.ReadProfile(context.Background())
	assert.False(t, ok)

	stubPasswords(t, "secret1")
	out = h.run(t, "logout\nann@example.com\n")
	assert.Contains(t, out, "Please log in first.")
	assert.Contains(t, out, "Login successful.")
	assert.NotContains(t, out, "Logged out.")
	assert.NotNil(t, h.store.State().User)
}

func TestSocialLogin_PastedRedirect(t *testing.T) {
	h := newHarness(t)
	h.backend.AuthorizeOAuth("code-1", "gil@example.com", "google", map[string]any{"full_name": "Gil"})

	out := h.run(t, "social Google\nhttp://localhost:3000/auth/callback?code=code-1\n")

	assert.Contains(t, out, "Open this address in your browser")
	assert.Contains(t, out, "Signed in as gil@example.com.")
	u := h.store.State().User
	require.NotNil(t, u)
	assert.Equal(t, "Gil", u.Name)
}

func TestSocialLogin_UnsupportedProvider(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "social myspace\n")

	assert.Contains(t, out, "Error: myspace login failed")
}
