package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultSignupBonus is credited to every new account unless configured
// otherwise.
const DefaultSignupBonus = 10

const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds runtime settings for the chat client.
type Config struct {
	SupabaseURL    string
	AnonKey        string
	ServiceRoleKey string

	// RecordsBackend selects how the Users and Credit_History tables are
	// reached: over the REST API or a direct database connection.
	RecordsBackend string
	DatabaseURL    string

	CachePath      string
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	// RateLimit caps outgoing requests per second; 0 disables the cap.
	RateLimit      float64

	SignupBonus      int64
	OAuthRedirectURL string
	ResetRedirectURL string

	StorageEndpoint  string
	StorageRegion    string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StoragePublicURL string

	LogFile  string
	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.RecordsBackend = BackendREST
	c.CachePath = "chatwithyou.db"
	c.RequestTimeout = 15 * time.Second
	c.RetryAttempts = 3
	c.RetryDelay = 200 * time.Millisecond
	c.RateLimit = 10
	c.SignupBonus = DefaultSignupBonus
	c.OAuthRedirectURL = "http://localhost:3000/auth/callback"
	c.ResetRedirectURL = "http://localhost:3000/reset-password"
	c.StorageBucket = "user-avatars"
	c.StorageRegion = "us-east-1"
	c.LogFile = "chatwithyou.log"
	c.LogLevel = "info"
}

// Load builds a Config from defaults, the dotenv file, the environment, the
// JSON file and flags found in args. lookupEnv is usually os.LookupEnv.
func Load(args []string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	env, err := newEnv(args, lookupEnv)
	if err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, env); err != nil {
		return nil, err
	}
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}

	cfg.derive()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads the configuration of the running process.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:], os.LookupEnv)
}

// derive fills settings that default to something based on SupabaseURL.
func (c *Config) derive() {
	c.SupabaseURL = strings.TrimRight(c.SupabaseURL, "/")
	if c.SupabaseURL == "" {
		return
	}
	if c.StorageEndpoint == "" {
		c.StorageEndpoint = c.SupabaseURL + "/storage/v1/s3"
	}
	if c.StoragePublicURL == "" {
		c.StoragePublicURL = c.SupabaseURL + "/storage/v1/object/public"
	}
}

// Validate reports the first setting that makes the client unusable.
func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("%w: backend URL is required (-u or SUPABASE_URL)", ErrInvalidConfig)
	}
	if u, err := url.Parse(c.SupabaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: backend URL %q is not absolute", ErrInvalidConfig, c.SupabaseURL)
	}
	if c.AnonKey == "" {
		return fmt.Errorf("%w: anon key is required (-k or SUPABASE_ANON_KEY)", ErrInvalidConfig)
	}
	switch c.RecordsBackend {
	case BackendREST:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: records backend %q needs DATABASE_URL", ErrInvalidConfig, c.RecordsBackend)
		}
	default:
		return fmt.Errorf("%w: unknown records backend %q", ErrInvalidConfig, c.RecordsBackend)
	}
	if c.SignupBonus < 0 {
		return fmt.Errorf("%w: signup bonus must not be negative", ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// StorageEnabled reports whether avatar uploads can be configured.
func (c *Config) StorageEnabled() bool {
	return c.StorageEndpoint != "" && c.StorageAccessKey != "" && c.StorageSecretKey != ""
}
