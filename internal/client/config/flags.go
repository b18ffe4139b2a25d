package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/flagx"
)

var knownFlags = []string{"-u", "-k", "-d", "-t", "-b", "-l"}

// parseFlags populates selected Config fields from command-line flags.
// Other flags in args are ignored so the JSON and env loaders can share
// the command line.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("chatwithyou", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.SupabaseURL, "u", cfg.SupabaseURL, "backend project URL")
	fs.StringVar(&cfg.AnonKey, "k", cfg.AnonKey, "anonymous API key")
	fs.StringVar(&cfg.CachePath, "d", cfg.CachePath, "local cache database path")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.RecordsBackend, "b", cfg.RecordsBackend, "records backend: rest or postgres")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			cfg.RequestTimeout = time.Duration(*timeout) * time.Second
		}
	})
	return nil
}
