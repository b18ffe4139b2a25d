package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/flagx"
	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// env resolves a key from the process environment, then from the dotenv
// file.
type env struct {
	lookup func(string) (string, bool)
	file   map[string]string
}

func newEnv(args []string, lookupEnv func(string) (string, bool)) (*env, error) {
	e := &env{lookup: lookupEnv}
	if e.lookup == nil {
		e.lookup = func(string) (string, bool) { return "", false }
	}

	path := flagx.Lookup(args, "e", "env")
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	m, err := godotenv.Read(path)
	switch {
	case err == nil:
		e.file = m
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return e, nil
}

func (e *env) get(key string) (string, bool) {
	if v, ok := e.lookup(key); ok {
		return v, true
	}
	v, ok := e.file[key]
	return v, ok
}

// parseEnv overlays cfg with environment values. Unset keys leave the
// current value alone.
func parseEnv(cfg *Config, e *env) error {
	strs := map[string]*string{
		"SUPABASE_URL":              &cfg.SupabaseURL,
		"SUPABASE_ANON_KEY":         &cfg.AnonKey,
		"SUPABASE_SERVICE_ROLE_KEY": &cfg.ServiceRoleKey,
		"RECORDS_BACKEND":           &cfg.RecordsBackend,
		"DATABASE_URL":              &cfg.DatabaseURL,
		"CACHE_PATH":                &cfg.CachePath,
		"OAUTH_REDIRECT_URL":        &cfg.OAuthRedirectURL,
		"RESET_REDIRECT_URL":        &cfg.ResetRedirectURL,
		"STORAGE_ENDPOINT":          &cfg.StorageEndpoint,
		"STORAGE_REGION":            &cfg.StorageRegion,
		"STORAGE_ACCESS_KEY":        &cfg.StorageAccessKey,
		"STORAGE_SECRET_KEY":        &cfg.StorageSecretKey,
		"STORAGE_BUCKET":            &cfg.StorageBucket,
		"STORAGE_PUBLIC_URL":        &cfg.StoragePublicURL,
		"LOG_FILE":                  &cfg.LogFile,
		"LOG_LEVEL":                 &cfg.LogLevel,
	}
	for k, p := range strs {
		if v, ok := e.get(k); ok && v != "" {
			*p = v
		}
	}

	if v, ok := e.get("SIGNUP_BONUS"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SIGNUP_BONUS: %w", err)
		}
		cfg.SignupBonus = n
	}
	if v, ok := e.get("REQUEST_RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("REQUEST_RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = f
	}
	if v, ok := e.get("REQUEST_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	return nil
}
