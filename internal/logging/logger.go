// Package logging holds the logger the chat client hands to its session
// store, services and remote clients. SlogLogger writes JSON lines to the
// rotated client log file.
package logging

import "context"

// Logger records client events with key-value attributes, for example:
//
//	log.Info(ctx, "credits changed", "user_id", id, "balance", next)
type Logger interface {
	// Debug is for stale results, cache misses and similar noise.
	Debug(ctx context.Context, msg string, args ...any)
	// Info marks completed account and credit operations.
	Info(ctx context.Context, msg string, args ...any)
	// Warn reports a failed operation that the user was told about.
	Warn(ctx context.Context, msg string, args ...any)
	// Error reports writes left half done, such as a missing ledger row.
	Error(ctx context.Context, msg string, args ...any)
	// With scopes a logger, e.g. With("component", "credits").
	With(args ...any) Logger
}
