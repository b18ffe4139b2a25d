// Package config loads runtime configuration for the chat client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. A dotenv file (default ".env", selected with -e/-env) and the process
//     environment; the process environment wins over the file.
//  3. Optional JSON file selected with -c/-config.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-u string   backend project URL
//	-k string   anonymous (public) API key
//	-d string   path of the local cache database
//	-t int      request timeout (seconds)
//	-b string   records backend: "rest" or "postgres"
//	-l string   log file
//
// # Environment
//
//	SUPABASE_URL, SUPABASE_ANON_KEY, SUPABASE_SERVICE_ROLE_KEY,
//	RECORDS_BACKEND, DATABASE_URL, CACHE_PATH, REQUEST_TIMEOUT,
//	SIGNUP_BONUS, OAUTH_REDIRECT_URL, RESET_REDIRECT_URL,
//	STORAGE_ENDPOINT, STORAGE_REGION, STORAGE_ACCESS_KEY, STORAGE_SECRET_KEY,
//	STORAGE_BUCKET, STORAGE_PUBLIC_URL, LOG_FILE, LOG_LEVEL
//
// # JSON schema
//
// Intervals use timex.Duration, so they can be strings like "15s" or integer
// nanoseconds:
//
//	{
//	  "supabase_url": "https://abc.supabase.co",
//	  "anon_key": "eyJ...",
//	  "request_timeout": "15s",
//	  "signup_bonus": 10
//	}
package config
