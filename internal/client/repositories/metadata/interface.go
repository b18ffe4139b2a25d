// Package metadata stores small named blobs (cached profile, session token,
// user settings) in the local SQLite database.
package metadata

import (
	"context"
)

// Repository is a flat key/value table. Get returns (nil, nil) when the key
// is absent.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
