package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/chatwithyou/internal/flagx"
	"github.com/dmitrijs2005/chatwithyou/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// zero-valued fields that are absent from the file leave Config untouched.
type JsonConfig struct {
	SupabaseURL      string          `json:"supabase_url"`
	AnonKey          string          `json:"anon_key"`
	ServiceRoleKey   string          `json:"service_role_key"`
	RecordsBackend   string          `json:"records_backend"`
	DatabaseURL      string          `json:"database_url"`
	CachePath        string          `json:"cache_path"`
	RequestTimeout   *timex.Duration `json:"request_timeout"`
	RetryAttempts    *int            `json:"retry_attempts"`
	RetryDelay       *timex.Duration `json:"retry_delay"`
	RateLimit        *float64        `json:"rate_limit"`
	SignupBonus      *int64          `json:"signup_bonus"`
	OAuthRedirectURL string          `json:"oauth_redirect_url"`
	ResetRedirectURL string          `json:"reset_redirect_url"`
	StorageEndpoint  string          `json:"storage_endpoint"`
	StorageRegion    string          `json:"storage_region"`
	StorageAccessKey string          `json:"storage_access_key"`
	StorageSecretKey string          `json:"storage_secret_key"`
	StorageBucket    string          `json:"storage_bucket"`
	StoragePublicURL string          `json:"storage_public_url"`
	LogFile          string          `json:"log_file"`
	LogLevel         string          `json:"log_level"`
}

// parseJson overlays cfg with the JSON file named by -c/-config, if any.
func parseJson(cfg *Config, args []string) error {
	path := flagx.Lookup(args, "c", "config")
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.SupabaseURL, jc.SupabaseURL)
	setString(&cfg.AnonKey, jc.AnonKey)
	setString(&cfg.ServiceRoleKey, jc.ServiceRoleKey)
	setString(&cfg.RecordsBackend, jc.RecordsBackend)
	setString(&cfg.DatabaseURL, jc.DatabaseURL)
	setString(&cfg.CachePath, jc.CachePath)
	setString(&cfg.OAuthRedirectURL, jc.OAuthRedirectURL)
	setString(&cfg.ResetRedirectURL, jc.ResetRedirectURL)
	setString(&cfg.StorageEndpoint, jc.StorageEndpoint)
	setString(&cfg.StorageRegion, jc.StorageRegion)
	setString(&cfg.StorageAccessKey, jc.StorageAccessKey)
	setString(&cfg.StorageSecretKey, jc.StorageSecretKey)
	setString(&cfg.StorageBucket, jc.StorageBucket)
	setString(&cfg.StoragePublicURL, jc.StoragePublicURL)
	setString(&cfg.LogFile, jc.LogFile)
	setString(&cfg.LogLevel, jc.LogLevel)

	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.RetryAttempts != nil {
		cfg.RetryAttempts = *jc.RetryAttempts
	}
	if jc.RetryDelay != nil {
		cfg.RetryDelay = jc.RetryDelay.Duration
	}
	if jc.RateLimit != nil {
		cfg.RateLimit = *jc.RateLimit
	}
	if jc.SignupBonus != nil {
		cfg.SignupBonus = *jc.SignupBonus
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
