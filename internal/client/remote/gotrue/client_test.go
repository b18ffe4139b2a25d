package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemStore() *memStore { return &memStore{m: map[string][]byte{}} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *memStore) Set(_ context.Context, key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *memStore) Delete(_ context.Context, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
}

func signToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(exp)},
		Email:            sub + "@example.com",
		Role:             "authenticated",
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

const userJSON = `{"id":"u1","email":"ann@example.com","email_confirmed_at":"2025-01-01T00:00:00Z","app_metadata":{"provider":"email"}}`

func sessionJSON(access, refresh string) string {
	return `{"access_token":"` + access + `","refresh_token":"` + refresh + `","token_type":"bearer","expires_in":3600,"user":` + userJSON + `}`
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newClient(t *testing.T, h http.HandlerFunc, store Storage, serviceKey string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		URL:            srv.URL,
		AnonKey:        "anon-key",
		ServiceRoleKey: serviceKey,
		RetryAttempts:  1,
	}, store)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresAnonKey(t *testing.T) {
	_, err := New(Config{URL: "https://proj.supabase.co"}, newMemStore())
	require.Error(t, err)
}

func TestSignInWithPassword_PersistsSession(t *testing.T) {
	store := newMemStore()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/token", r.URL.Path)
		require.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			writeJSON(w, 400, `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`)
			return
		}
		writeJSON(w, 200, sessionJSON("at-1", "rt-1"))
	}, store, "")
	ctx := context.Background()

	_, err := c.SignInWithPassword(ctx, "ann@example.com", "wrong")
	require.ErrorIs(t, err, remote.ErrInvalidCredentials)
	_, ok := store.Get(ctx, SessionKey)
	require.False(t, ok)

	s, err := c.SignInWithPassword(ctx, "ann@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "at-1", s.AccessToken)
	assert.NotZero(t, s.ExpiresAt)
	assert.True(t, s.User.Confirmed())

	// a fresh client on the same storage picks the session up without a call
	reloaded, err := New(Config{URL: "http://127.0.0.1:1", AnonKey: "anon-key"}, store)
	require.NoError(t, err)
	got, err := reloaded.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "at-1", got.AccessToken)
}

func TestSignUp_PendingConfirmationHasNoSession(t *testing.T) {
	store := newMemStore()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/signup", r.URL.Path)
		var body struct {
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ann", body.Data["username"])
		writeJSON(w, 200, `{"id":"u1","email":"ann@example.com"}`)
	}, store, "")

	s, err := c.SignUp(context.Background(), "ann@example.com", "secret", map[string]any{"username": "ann"})
	require.NoError(t, err)
	assert.False(t, s.Active())
	require.NotNil(t, s.User)
	assert.Equal(t, "u1", s.User.ID)

	_, ok := store.Get(context.Background(), SessionKey)
	assert.False(t, ok)
}

func TestSignUp_ActiveSessionIsKept(t *testing.T) {
	store := newMemStore()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, sessionJSON("at-1", "rt-1"))
	}, store, "")

	s, err := c.SignUp(context.Background(), "ann@example.com", "secret", nil)
	require.NoError(t, err)
	assert.True(t, s.Active())

	_, ok := store.Get(context.Background(), SessionKey)
	assert.True(t, ok)
}

func TestSignUp_DuplicateIsConflict(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 422, `{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`)
	}, newMemStore(), "")

	_, err := c.SignUp(context.Background(), "ann@example.com", "secret", nil)
	assert.ErrorIs(t, err, remote.ErrConflict)
}

func TestGetSession_RefreshesExpiredToken(t *testing.T) {
	store := newMemStore()
	fresh := signToken(t, "u1", time.Now().Add(time.Hour))
	var refreshes int
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "rt-old", body["refresh_token"])
		refreshes++
		writeJSON(w, 200, `{"access_token":"`+fresh+`","refresh_token":"rt-new"}`)
	}, store, "")
	ctx := context.Background()

	stale := signToken(t, "u1", time.Now().Add(-time.Minute))
	store.Set(ctx, SessionKey, []byte(`{"access_token":"`+stale+`","refresh_token":"rt-old","user":`+userJSON+`}`))

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, fresh, s.AccessToken)
	assert.Equal(t, "u1", s.User.ID, "user carried over from the old session")
	assert.NotZero(t, s.ExpiresAt, "expiry taken from the token's exp claim")

	_, err = c.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshes)
}

func TestGetSession_RejectedRefreshEndsSession(t *testing.T) {
	store := newMemStore()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, `{"error":"invalid_grant","error_description":"Invalid Refresh Token: Already Used"}`)
	}, store, "")
	ctx := context.Background()

	store.Set(ctx, SessionKey, []byte(`{"access_token":"x","refresh_token":"rt","expires_at":1}`))

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	_, ok := store.Get(ctx, SessionKey)
	assert.False(t, ok)
}

func TestGetSession_TransientRefreshFailureKeepsSession(t *testing.T) {
	store := newMemStore()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, store, "")
	ctx := context.Background()

	store.Set(ctx, SessionKey, []byte(`{"access_token":"x","refresh_token":"rt","expires_at":1}`))

	_, err := c.GetSession(ctx)
	require.ErrorIs(t, err, remote.ErrUnavailable)
	_, ok := store.Get(ctx, SessionKey)
	assert.True(t, ok)
}

func TestGetSession_CorruptStorageIsDropped(t *testing.T) {
	store := newMemStore()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	}, store, "")
	ctx := context.Background()

	store.Set(ctx, SessionKey, []byte(`{not json`))

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	_, ok := store.Get(ctx, SessionKey)
	assert.False(t, ok)
}

func TestGetUser(t *testing.T) {
	store := newMemStore()
	var status atomic.Int32
	status.Store(http.StatusOK)
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/user", r.URL.Path)
		require.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		if code := int(status.Load()); code != http.StatusOK {
			writeJSON(w, code, `{"code":401,"error_code":"bad_jwt","msg":"invalid JWT"}`)
			return
		}
		writeJSON(w, 200, userJSON)
	}, store, "")
	ctx := context.Background()

	_, err := c.GetUser(ctx)
	require.ErrorIs(t, err, remote.ErrNoSession)

	store.Set(ctx, SessionKey, []byte(sessionJSON("at-1", "rt-1")))
	c.loaded = false

	u, err := c.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)

	status.Store(http.StatusUnauthorized)
	_, err = c.GetUser(ctx)
	require.ErrorIs(t, err, remote.ErrNoSession)
	_, ok := store.Get(ctx, SessionKey)
	assert.False(t, ok, "a revoked token ends the local session")
}

func TestSignOut_AlwaysClearsLocally(t *testing.T) {
	store := newMemStore()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/logout", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}, store, "")
	ctx := context.Background()

	store.Set(ctx, SessionKey, []byte(sessionJSON("at-1", "rt-1")))

	err := c.SignOut(ctx)
	require.ErrorIs(t, err, remote.ErrUnavailable)

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	_, ok := store.Get(ctx, SessionKey)
	assert.False(t, ok)

	require.NoError(t, c.SignOut(ctx), "signing out twice is fine")
}

func TestUpdateUser_SendsAttributes(t *testing.T) {
	store := newMemStore()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"full_name": "Ann B"}, body["data"])
		assert.NotContains(t, body, "password")
		writeJSON(w, 200, `{"id":"u1","email":"ann@example.com","user_metadata":{"full_name":"Ann B"}}`)
	}, store, "")
	ctx := context.Background()
	store.Set(ctx, SessionKey, []byte(sessionJSON("at-1", "rt-1")))

	u, err := c.UpdateUser(ctx, models.UserAttributes{Data: map[string]any{"full_name": "Ann B"}})
	require.NoError(t, err)
	assert.Equal(t, "Ann B", u.MetadataString("full_name"))

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ann B", s.User.MetadataString("full_name"))
}

func TestResetPasswordForEmail(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/recover", r.URL.Path)
		assert.Equal(t, "https://app.example/reset-password", r.URL.Query().Get("redirect_to"))
		writeJSON(w, 200, `{}`)
	}, newMemStore(), "")

	require.NoError(t, c.ResetPasswordForEmail(context.Background(), "ann@example.com", "https://app.example/reset-password"))
}

func TestDeleteUser(t *testing.T) {
	t.Run("without service key", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("no request expected")
		}, newMemStore(), "")
		require.ErrorIs(t, c.DeleteUser(context.Background(), "u1"), remote.ErrUnauthorized)
	})

	t.Run("with service key", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodDelete, r.Method)
			require.Equal(t, "/auth/v1/admin/users/u1", r.URL.Path)
			assert.Equal(t, "service-key", r.Header.Get("apikey"))
			assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
			writeJSON(w, 200, `{}`)
		}, newMemStore(), "service-key")
		require.NoError(t, c.DeleteUser(context.Background(), "u1"))
	})
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	c, err := ParseClaims(signToken(t, "u1", exp))
	require.NoError(t, err)
	assert.Equal(t, "u1", c.Subject)
	assert.Equal(t, "u1@example.com", c.Email)
	assert.True(t, exp.Equal(c.ExpiresAt.Time))

	_, err = ParseClaims("not-a-jwt")
	require.Error(t, err)
}
