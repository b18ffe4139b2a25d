// Package remotetest provides an in-memory stand-in for the identity and
// record services, with failure injection and call gates for tests that
// need to control ordering.
package remotetest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	user models.IdentityUser
	hash []byte
}

type pendingOAuth struct {
	email    string
	provider string
	meta     map[string]any
}

// Backend implements remote.Identity and remote.Records in memory.
type Backend struct {
	// AutoConfirm makes sign-up return an active session, as a project with
	// email confirmation disabled does.
	AutoConfirm bool
	Now         func() time.Time

	mu        sync.Mutex
	accounts  map[string]*account // by id
	profiles  map[string]models.ProfileRecord
	ledger    []models.LedgerEntry
	session   *models.AuthSession
	pending   map[string]pendingOAuth
	failures  map[string]error
	gates     map[string]*Gate
	calls     map[string]int
	resets    []string
	redirects []string
}

var (
	_ remote.Identity = (*Backend)(nil)
	_ remote.Records  = (*Backend)(nil)
)

func New() *Backend {
	return &Backend{
		AutoConfirm: true,
		Now:         time.Now,
		accounts:    map[string]*account{},
		profiles:    map[string]models.ProfileRecord{},
		pending:     map[string]pendingOAuth{},
		failures:    map[string]error{},
		gates:       map[string]*Gate{},
		calls:       map[string]int{},
	}
}

// Gate holds one call of a method until released.
type Gate struct {
	Entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

// Block makes the next call of method wait, after signalling Entered,
// until the returned gate is released or its context ends.
func (b *Backend) Block(method string) *Gate {
	g := &Gate{Entered: make(chan struct{}), release: make(chan struct{})}
	b.mu.Lock()
	b.gates[method] = g
	b.mu.Unlock()
	return g
}

// FailOn makes every call of method return err until ClearFailures.
func (b *Backend) FailOn(method string, err error) {
	b.mu.Lock()
	b.failures[method] = err
	b.mu.Unlock()
}

func (b *Backend) ClearFailures() {
	b.mu.Lock()
	b.failures = map[string]error{}
	b.mu.Unlock()
}

// Calls reports how often method was invoked.
func (b *Backend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// enter records the call, waits on a gate and returns an injected failure.
func (b *Backend) enter(ctx context.Context, method string) error {
	b.mu.Lock()
	b.calls[method]++
	g := b.gates[method]
	delete(b.gates, method)
	b.mu.Unlock()

	if g != nil {
		close(g.Entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[method]
}

// SeedUser registers an account with a profile row, as if it had signed up
// earlier. The account's email counts as confirmed.
func (b *Backend) SeedUser(email, password, name string, credits int64) *models.IdentityUser {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.Now().UTC()
	acc := b.createAccountLocked(email, password, models.ProviderEmail, map[string]any{"username": name})
	acc.user.EmailConfirmedAt = &now
	b.profiles[acc.user.ID] = *models.NewProfileRecord(&acc.user, name, nil, credits, now)
	u := acc.user
	return &u
}

// AuthorizeOAuth prepares code as if the provider had authenticated email
// and redirected back with it.
func (b *Backend) AuthorizeOAuth(code, email, provider string, meta map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[code] = pendingOAuth{email: email, provider: provider, meta: meta}
}

// Profile returns the stored Users row.
func (b *Backend) Profile(id string) (models.ProfileRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.profiles[id]
	return p, ok
}

// HasAccount reports whether an identity exists for email.
func (b *Backend) HasAccount(email string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findByEmailLocked(email) != nil
}

// Session returns the backend's current session.
func (b *Backend) Session() *models.AuthSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// Redirects lists the provider URLs handed out by SignInWithOAuth.
func (b *Backend) Redirects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.redirects...)
}

// ResetRequests lists the addresses password resets were requested for.
func (b *Backend) ResetRequests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.resets...)
}

func (b *Backend) findByEmailLocked(email string) *account {
	for _, a := range b.accounts {
		if a.user.Email == email {
			return a
		}
	}
	return nil
}

func (b *Backend) createAccountLocked(email, password, provider string, meta map[string]any) *account {
	var hash []byte
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		hash = h
	}
	acc := &account{
		user: models.IdentityUser{
			ID:           uuid.NewString(),
			Email:        email,
			CreatedAt:    b.Now().UTC(),
			AppMetadata:  models.AppMetadata{Provider: provider, Providers: []string{provider}},
			UserMetadata: meta,
		},
		hash: hash,
	}
	b.accounts[acc.user.ID] = acc
	return acc
}

func (b *Backend) startSessionLocked(acc *account) *models.AuthSession {
	u := acc.user
	b.session = &models.AuthSession{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		TokenType:    "bearer",
		ExpiresIn:    3600,
		ExpiresAt:    b.Now().Add(time.Hour).Unix(),
		User:         &u,
	}
	s := *b.session
	return &s
}

func invalidCredentials() error {
	return &remote.APIError{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error) {
	if err := b.enter(ctx, "SignInWithPassword"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.findByEmailLocked(email)
	if acc == nil || acc.hash == nil || bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return nil, invalidCredentials()
	}
	return b.startSessionLocked(acc), nil
}

func (b *Backend) SignUp(ctx context.Context, email, password string, data map[string]any) (*models.AuthSession, error) {
	if err := b.enter(ctx, "SignUp"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if email == "" || password == "" {
		return nil, &remote.APIError{Status: http.StatusBadRequest, Code: "validation_failed", Message: "Signup requires a valid password"}
	}
	if b.findByEmailLocked(email) != nil {
		return nil, &remote.APIError{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered"}
	}

	acc := b.createAccountLocked(email, password, models.ProviderEmail, data)
	if !b.AutoConfirm {
		u := acc.user
		return &models.AuthSession{User: &u}, nil
	}
	now := b.Now().UTC()
	acc.user.EmailConfirmedAt = &now
	return b.startSessionLocked(acc), nil
}

func (b *Backend) SignOut(ctx context.Context) error {
	if err := b.enter(ctx, "SignOut"); err != nil {
		return err
	}
	b.mu.Lock()
	b.session = nil
	b.mu.Unlock()
	return nil
}

func (b *Backend) GetSession(ctx context.Context) (*models.AuthSession, error) {
	if err := b.enter(ctx, "GetSession"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil, nil
	}
	s := *b.session
	return &s, nil
}

func (b *Backend) GetUser(ctx context.Context) (*models.IdentityUser, error) {
	if err := b.enter(ctx, "GetUser"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil, remote.ErrNoSession
	}
	acc, ok := b.accounts[b.session.User.ID]
	if !ok {
		b.session = nil
		return nil, remote.ErrNoSession
	}
	u := acc.user
	return &u, nil
}

func (b *Backend) SignInWithOAuth(ctx context.Context, provider, returnURL string) (string, error) {
	if err := b.enter(ctx, "SignInWithOAuth"); err != nil {
		return "", err
	}
	q := url.Values{"provider": {provider}, "redirect_to": {returnURL}}
	u := "https://auth.remotetest.invalid/authorize?" + q.Encode()

	b.mu.Lock()
	b.redirects = append(b.redirects, u)
	b.mu.Unlock()
	return u, nil
}

func (b *Backend) ExchangeOAuthCallback(ctx context.Context, params url.Values) (*models.AuthSession, error) {
	if err := b.enter(ctx, "ExchangeOAuthCallback"); err != nil {
		return nil, err
	}
	code := params.Get("code")
	if code == "" {
		return nil, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[code]
	if !ok {
		return nil, &remote.APIError{Status: http.StatusNotFound, Code: "flow_state_not_found", Message: "invalid flow state, no valid flow state found"}
	}
	delete(b.pending, code)

	acc := b.findByEmailLocked(p.email)
	if acc == nil {
		acc = b.createAccountLocked(p.email, "", p.provider, p.meta)
		now := b.Now().UTC()
		acc.user.EmailConfirmedAt = &now
	}
	return b.startSessionLocked(acc), nil
}

func (b *Backend) UpdateUser(ctx context.Context, attrs models.UserAttributes) (*models.IdentityUser, error) {
	if err := b.enter(ctx, "UpdateUser"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil, remote.ErrNoSession
	}
	acc, ok := b.accounts[b.session.User.ID]
	if !ok {
		return nil, remote.ErrNoSession
	}

	if attrs.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(attrs.Password), bcrypt.MinCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		acc.hash = h
	}
	if len(attrs.Data) > 0 {
		meta := make(map[string]any, len(acc.user.UserMetadata)+len(attrs.Data))
		for k, v := range acc.user.UserMetadata {
			meta[k] = v
		}
		for k, v := range attrs.Data {
			meta[k] = v
		}
		acc.user.UserMetadata = meta
	}
	u := acc.user
	return &u, nil
}

func (b *Backend) ResetPasswordForEmail(ctx context.Context, email, returnURL string) error {
	if err := b.enter(ctx, "ResetPasswordForEmail"); err != nil {
		return err
	}
	b.mu.Lock()
	b.resets = append(b.resets, email)
	b.mu.Unlock()
	return nil
}

func (b *Backend) DeleteUser(ctx context.Context, id string) error {
	if err := b.enter(ctx, "DeleteUser"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.accounts[id]; !ok {
		return &remote.APIError{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
	}
	delete(b.accounts, id)
	if b.session != nil && b.session.User.ID == id {
		b.session = nil
	}
	return nil
}

func (b *Backend) GetProfile(ctx context.Context, id string) (*models.ProfileRecord, error) {
	if err := b.enter(ctx, "GetProfile"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.profiles[id]
	if !ok {
		return nil, fmt.Errorf("get profile %s: %w", id, remote.ErrNotFound)
	}
	return &p, nil
}

func (b *Backend) InsertProfile(ctx context.Context, r *models.ProfileRecord) error {
	if err := b.enter(ctx, "InsertProfile"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.profiles[r.ID]; ok {
		return &remote.APIError{Status: http.StatusConflict, Code: "23505", Message: "duplicate key value violates unique constraint"}
	}
	b.profiles[r.ID] = *r
	return nil
}

func (b *Backend) UpdateProfile(ctx context.Context, id string, u models.ProfileUpdate) error {
	if err := b.enter(ctx, "UpdateProfile"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.profiles[id]
	if !ok {
		return fmt.Errorf("update profile %s: %w", id, remote.ErrNotFound)
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.AvatarURL != nil {
		v := *u.AvatarURL
		p.AvatarURL = &v
	}
	if u.LastLogin != nil {
		v := *u.LastLogin
		p.LastLogin = &v
	}
	if u.Credits != nil {
		v := *u.Credits
		p.Credits = &v
	}
	b.profiles[id] = p
	return nil
}

func (b *Backend) InsertLedgerEntry(ctx context.Context, e models.LedgerEntry) error {
	if err := b.enter(ctx, "InsertLedgerEntry"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	b.ledger = append(b.ledger, e)
	return nil
}

func (b *Backend) ListLedgerEntries(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	if err := b.enter(ctx, "ListLedgerEntries"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.LedgerEntry
	for i := len(b.ledger) - 1; i >= 0; i-- {
		if b.ledger[i].UserID == userID {
			out = append(out, b.ledger[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
