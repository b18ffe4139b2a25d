// Package session holds the process-wide authentication state: the current
// user, whether a check is in flight, and the last error to show.
//
// Mutations that result from a remote call go through an Op. Every Op gets a
// token from a monotonically increasing counter and its result is committed
// only while that token is still the newest, so a slow operation can never
// overwrite the outcome of one issued after it. ClearSession invalidates all
// outstanding operations.
package session

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/logging"
)

// Cache is the durable copy of the current profile.
type Cache interface {
	ReadProfile(ctx context.Context) (*models.UserProfile, bool)
	WriteProfile(ctx context.Context, p *models.UserProfile)
	Erase(ctx context.Context)
}

// Fetcher returns the user the remote service considers signed in, or nil.
type Fetcher func(ctx context.Context) (*models.UserProfile, error)

type Store struct {
	cache  Cache
	logger logging.Logger

	mu           sync.Mutex
	user         *models.UserProfile
	lastError    string
	initializing bool
	inflight     int
	seq          uint64
	// clears counts ClearSession calls.
	clears       uint64
	listeners    map[int]func(models.SessionState)
	nextID       int

	// notifyMu keeps listener deliveries in mutation order.
	notifyMu sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once
}

// New returns a store in its start-up state: no user, loading.
func New(cache Cache, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Store{
		cache:        cache,
		logger:       logger.With("component", "session"),
		initializing: true,
		listeners:    map[int]func(models.SessionState){},
		ready:        make(chan struct{}),
	}
}

func (s *Store) snapshotLocked() models.SessionState {
	return models.SessionState{
		User:      s.user.Clone(),
		IsLoading: s.initializing || s.inflight > 0,
		LastError: s.lastError,
	}
}

func (s *Store) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every state change and returns a function that
// removes it. fn runs on the mutating goroutine and must not mutate the store.
func (s *Store) Subscribe(fn func(models.SessionState)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// unlockAndPublish releases mu and hands the state to listeners. It must be
// called with mu held.
func (s *Store) unlockAndPublish() {
	state := s.snapshotLocked()
	fns := make([]func(models.SessionState), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.notifyMu.Lock()
	s.mu.Unlock()

	defer s.notifyMu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

// AwaitReady blocks until Initialize has published its result.
func (s *Store) AwaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Initialize publishes the cached profile provisionally, then replaces it
// with what fetch reports. A cached profile the remote side no longer
// vouches for is dropped together with the cache, and so is everything
// when fetch fails. Loading ends in every case.
func (s *Store) Initialize(ctx context.Context, fetch Fetcher) {
	cached, hadCache := s.cache.ReadProfile(ctx)

	s.mu.Lock()
	if hadCache {
		s.user = cached
	}
	s.unlockAndPublish()

	op := s.Begin()
	defer s.finishInit()
	defer op.End()

	user, err := fetch(ctx)
	switch {
	case err != nil:
		s.logger.Warn(ctx, "initial session check failed", "error", err)
		if op.CommitError(err.Error()) {
			op.CommitUser(ctx, nil)
		}
	case user != nil:
		op.CommitUser(ctx, user)
	default:
		if hadCache {
			s.logger.Info(ctx, "cached profile has no remote session, dropping it")
		}
		op.CommitUser(ctx, nil)
	}
}

func (s *Store) finishInit() {
	s.mu.Lock()
	s.initializing = false
	s.unlockAndPublish()
	s.readyOnce.Do(func() { close(s.ready) })
}

// SetUser replaces the current user and mirrors it into the cache: written
// when present, erased when nil. Incomplete profiles are refused.
func (s *Store) SetUser(ctx context.Context, u *models.UserProfile) error {
	if u != nil {
		if err := u.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.setUserLocked(ctx, u)
	s.unlockAndPublish()
	return nil
}

func (s *Store) setUserLocked(ctx context.Context, u *models.UserProfile) {
	s.user = u.Clone()
	if u != nil {
		s.cache.WriteProfile(ctx, u)
	} else {
		s.cache.Erase(ctx)
	}
}

func (s *Store) SetError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.unlockAndPublish()
}

func (s *Store) ClearError() {
	s.SetError("")
}

// ClearSession drops the user and the cache unconditionally and makes every
// outstanding Op stale.
func (s *Store) ClearSession(ctx context.Context) {
	s.mu.Lock()
	s.seq++
	s.clears++
	s.setUserLocked(ctx, nil)
	s.unlockAndPublish()
}

// Op is one in-flight operation. Its commits land only while it is the
// newest operation; End must be called exactly once.
type Op struct {
	s      *Store
	token  uint64
	clears uint64
	once   sync.Once
}

// Begin starts an operation: loading turns on and the previous error is
// cleared.
func (s *Store) Begin() *Op {
	s.mu.Lock()
	s.seq++
	s.inflight++
	s.lastError = ""
	op := &Op{s: s, token: s.seq, clears: s.clears}
	s.unlockAndPublish()
	return op
}

// Current reports whether no newer operation or ClearSession has happened.
func (o *Op) Current() bool {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return o.token == o.s.seq
}

// LoggedOut reports whether ClearSession ran after the op began. A newer
// operation alone does not count.
func (o *Op) LoggedOut() bool {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return o.clears != o.s.clears
}

// CommitUser sets the user if the op is still current. Incomplete profiles
// are refused.
func (o *Op) CommitUser(ctx context.Context, u *models.UserProfile) bool {
	if u != nil && u.Validate() != nil {
		o.s.logger.Error(ctx, "refusing to publish incomplete profile")
		return false
	}
	s := o.s
	s.mu.Lock()
	if o.token != s.seq {
		s.mu.Unlock()
		s.logger.Debug(ctx, "discarding stale result", "token", o.token)
		return false
	}
	s.setUserLocked(ctx, u)
	s.unlockAndPublish()
	return true
}

// CommitError records msg as the last error if the op is still current.
func (o *Op) CommitError(msg string) bool {
	s := o.s
	s.mu.Lock()
	if o.token != s.seq {
		s.mu.Unlock()
		return false
	}
	s.lastError = msg
	s.unlockAndPublish()
	return true
}

// End finishes the operation; its loading intent is withdrawn.
func (o *Op) End() {
	o.once.Do(func() {
		s := o.s
		s.mu.Lock()
		s.inflight--
		s.unlockAndPublish()
	})
}
