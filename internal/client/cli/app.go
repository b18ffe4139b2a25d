package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/chatwithyou/internal/client/cache"
	"github.com/dmitrijs2005/chatwithyou/internal/client/config"
	"github.com/dmitrijs2005/chatwithyou/internal/client/guard"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote/gotrue"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote/pgrecords"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote/postgrest"
	"github.com/dmitrijs2005/chatwithyou/internal/client/services"
	"github.com/dmitrijs2005/chatwithyou/internal/client/session"
	"github.com/dmitrijs2005/chatwithyou/internal/client/storage"
	"github.com/dmitrijs2005/chatwithyou/internal/filex"
	"github.com/dmitrijs2005/chatwithyou/internal/logging"
	"golang.org/x/time/rate"
)

// rateBurst is how many requests may go out at once before RateLimit applies.
const rateBurst = 5

// Deps are the collaborators of an App.
type Deps struct {
	Auth    services.AuthService
	Credits services.CreditsService
	Store   *session.Store
	Cache   *cache.Cache
	Guard   *guard.Guard
	In      io.Reader
	Out     io.Writer
	Logger  logging.Logger
}

type App struct {
	auth     services.AuthService
	credits  services.CreditsService
	store    *session.Store
	cache    *cache.Cache
	guard    *guard.Guard
	logger   logging.Logger
	reader   *bufio.Reader
	out      io.Writer
	commands map[string]*command
	// returnTo is the command that was interrupted by a redirect to login.
	returnTo *invocation
	closers  []io.Closer
}

func New(d Deps) *App {
	if d.Guard == nil {
		d.Guard = guard.New()
	}
	if d.In == nil {
		d.In = os.Stdin
	}
	if d.Out == nil {
		d.Out = os.Stdout
	}
	if d.Logger == nil {
		d.Logger = logging.NewNopLogger()
	}
	a := &App{
		auth:    d.Auth,
		credits: d.Credits,
		store:   d.Store,
		cache:   d.Cache,
		guard:   d.Guard,
		logger:  d.Logger.With("component", "cli"),
		reader:  bufio.NewReader(d.In),
		out:     d.Out,
	}
	a.commands = a.commandTable()
	return a
}

// NewApp wires the real clients from cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	path, err := filex.EnsureParentDir(cfg.CachePath)
	if err != nil {
		logger.Warn(ctx, "cache directory unavailable", "error", err)
		path = cfg.CachePath
	}
	c := cache.Open(ctx, path, logger)

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), rateBurst)
	}

	identity, err := gotrue.New(gotrue.Config{
		URL:            cfg.SupabaseURL,
		AnonKey:        cfg.AnonKey,
		ServiceRoleKey: cfg.ServiceRoleKey,
		HTTPClient:     &http.Client{Timeout: cfg.RequestTimeout},
		Logger:         logger,
		RetryAttempts:  uint(cfg.RetryAttempts),
		RetryDelay:     cfg.RetryDelay,
		Limiter:        limiter,
	}, c)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	records, closer, err := openRecords(ctx, cfg, identity, limiter, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	var avatars services.AvatarStorage
	if cfg.StorageEnabled() {
		st, err := storage.New(ctx, storage.Config{
			Endpoint:        cfg.StorageEndpoint,
			Region:          cfg.StorageRegion,
			AccessKeyID:     cfg.StorageAccessKey,
			SecretAccessKey: cfg.StorageSecretKey,
			Bucket:          cfg.StorageBucket,
			PublicURL:       cfg.StoragePublicURL,
		})
		if err != nil {
			logger.Warn(ctx, "avatar storage disabled", "error", err)
		} else {
			avatars = st
		}
	}

	store := session.New(c, logger)
	authCfg := services.AuthConfig{
		SignupBonus:    cfg.SignupBonus,
		OAuthReturnURL: cfg.OAuthRedirectURL,
		ResetReturnURL: cfg.ResetRedirectURL,
	}

	a := New(Deps{
		Auth:    services.NewAuthService(identity, records, store, avatars, authCfg, logger),
		Credits: services.NewCreditsService(identity, records, store, logger),
		Store:   store,
		Cache:   c,
		Logger:  logger,
	})
	a.closers = append(a.closers, c)
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	return a, nil
}

// openRecords picks the records client named by cfg.RecordsBackend.
func openRecords(ctx context.Context, cfg *config.Config, identity *gotrue.Client, limiter *rate.Limiter, logger logging.Logger) (remote.Records, io.Closer, error) {
	switch cfg.RecordsBackend {
	case config.BackendPostgres:
		db, err := pgrecords.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open records database: %w", err)
		}
		return pgrecords.New(db), db, nil
	default:
		rc, err := postgrest.New(postgrest.Config{
			URL:           cfg.SupabaseURL,
			AnonKey:       cfg.AnonKey,
			Tokens:        identity.TokenSource(ctx),
			Timeout:       cfg.RequestTimeout,
			Logger:        logger,
			RetryAttempts: uint(cfg.RetryAttempts),
			RetryDelay:    cfg.RetryDelay,
			Limiter:       limiter,
		})
		return rc, nil, err
	}
}

// Run resolves the initial session and runs the REPL until exit or EOF.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	a.println("Chat With You (type 'help' for commands)")
	a.store.Initialize(ctx, a.auth.GetCurrentUser)
	if st := a.store.State(); st.LastError != "" {
		a.println("Could not check your session:", st.LastError)
	} else if st.User != nil {
		a.printf("Signed in as %s.\n", st.User.Email)
	}

	a.runREPL(ctx)
	return nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
