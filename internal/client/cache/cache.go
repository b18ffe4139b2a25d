// Package cache is the device-local store of the client: the last known user
// profile, the persisted auth session, user settings and the queue of chat
// messages composed while offline.
//
// The cache never fails its callers. When the database cannot be opened the
// cache runs in an unavailable mode where reads miss and writes are dropped;
// individual storage errors are logged and handled the same way.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/client/repositories/messages"
	"github.com/dmitrijs2005/chatwithyou/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/chatwithyou/internal/dbx"
	"github.com/dmitrijs2005/chatwithyou/internal/logging"
	"github.com/google/uuid"
)

// Well-known keys.
const (
	ProfileKey    = "user_data"
	SessionKey    = "auth_token"
	SettingPrefix = "user_setting_"
)

type Cache struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

// New wraps an already migrated database. A nil db yields an unavailable cache.
func New(db *sql.DB, logger logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Cache{db: db, logger: logger.With("component", "cache"), now: time.Now}
}

// Open opens and migrates the cache database at dsn. On failure the returned
// cache is unavailable rather than nil.
func Open(ctx context.Context, dsn string, logger logging.Logger) *Cache {
	db, err := InitDatabase(ctx, dsn)
	c := New(db, logger)
	if err != nil {
		c.logger.Warn(ctx, "local cache unavailable, continuing without it", "dsn", dsn, "error", err)
	}
	return c
}

// Available reports whether the cache is backed by a working database.
func (c *Cache) Available() bool {
	return c != nil && c.db != nil
}

func (c *Cache) Close() error {
	if !c.Available() {
		return nil
	}
	return c.db.Close()
}

func (c *Cache) metadataRepo(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}

func (c *Cache) messagesRepo(db dbx.DBTX) messages.Repository {
	return messages.NewSQLiteRepository(db)
}

// Get returns the raw value stored under key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Available() {
		return nil, false
	}
	v, err := c.metadataRepo(c.db).Get(ctx, key)
	if err != nil {
		c.logger.Warn(ctx, "cache read failed", "key", key, "error", err)
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v, true
}

// Set stores value under key.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	if !c.Available() {
		return
	}
	if err := c.metadataRepo(c.db).Set(ctx, key, value); err != nil {
		c.logger.Warn(ctx, "cache write failed", "key", key, "error", err)
	}
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if !c.Available() {
		return
	}
	if err := c.metadataRepo(c.db).Delete(ctx, keys...); err != nil {
		c.logger.Warn(ctx, "cache delete failed", "keys", keys, "error", err)
	}
}

func (c *Cache) WriteProfile(ctx context.Context, p *models.UserProfile) {
	if p == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		c.logger.Error(ctx, "failed to encode profile", "error", err)
		return
	}
	c.Set(ctx, ProfileKey, data)
}

// ReadProfile returns the cached profile. An undecodable or incomplete
// record counts as a miss.
func (c *Cache) ReadProfile(ctx context.Context) (*models.UserProfile, bool) {
	data, ok := c.Get(ctx, ProfileKey)
	if !ok {
		return nil, false
	}

	var p models.UserProfile
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn(ctx, "cached profile is corrupt, ignoring", "error", err)
		return nil, false
	}
	if err := p.Validate(); err != nil {
		c.logger.Warn(ctx, "cached profile is incomplete, ignoring", "error", err)
		return nil, false
	}
	return &p, true
}

// Erase drops the cached profile and the persisted auth session.
func (c *Cache) Erase(ctx context.Context) {
	c.Delete(ctx, ProfileKey, SessionKey)
}

// WriteSetting stores a JSON-encodable user preference.
func (c *Cache) WriteSetting(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn(ctx, "failed to encode setting", "key", key, "error", err)
		return
	}
	c.Set(ctx, SettingPrefix+key, data)
}

func (c *Cache) RemoveSetting(ctx context.Context, key string) {
	c.Delete(ctx, SettingPrefix+key)
}

// Settings returns every stored preference, undecoded, keyed by name.
func (c *Cache) Settings(ctx context.Context) map[string]json.RawMessage {
	out := map[string]json.RawMessage{}
	if !c.Available() {
		return out
	}
	all, err := c.metadataRepo(c.db).List(ctx, SettingPrefix)
	if err != nil {
		c.logger.Warn(ctx, "failed to list settings", "error", err)
		return out
	}
	for k, v := range all {
		out[k[len(SettingPrefix):]] = json.RawMessage(v)
	}
	return out
}

// ReadSetting returns the preference stored under key, or def when it is
// missing or cannot be decoded as T.
func ReadSetting[T any](ctx context.Context, c *Cache, key string, def T) T {
	data, ok := c.Get(ctx, SettingPrefix+key)
	if !ok {
		return def
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn(ctx, "stored setting is corrupt, using default", "key", key, "error", err)
		return def
	}
	return v
}

// EnqueueOfflineMessage appends m to the offline queue, assigning an id and a
// timestamp when missing. It returns the message as stored.
func (c *Cache) EnqueueOfflineMessage(ctx context.Context, m models.OfflineMessage) models.OfflineMessage {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = c.now().UTC()
	}
	if !c.Available() {
		return m
	}
	if err := c.messagesRepo(c.db).Enqueue(ctx, m); err != nil {
		c.logger.Warn(ctx, "failed to queue offline message", "id", m.ID, "error", err)
	}
	return m
}

// PendingOfflineMessages reports the queue length.
func (c *Cache) PendingOfflineMessages(ctx context.Context) int {
	if !c.Available() {
		return 0
	}
	n, err := c.messagesRepo(c.db).Count(ctx)
	if err != nil {
		c.logger.Warn(ctx, "failed to count offline messages", "error", err)
		return 0
	}
	return n
}

// DrainOfflineMessages returns the queued messages in insertion order and
// empties the queue. Reading and clearing happen in one transaction, so a
// message is never both returned and kept, or dropped unreturned.
func (c *Cache) DrainOfflineMessages(ctx context.Context) []models.OfflineMessage {
	if !c.Available() {
		return nil
	}

	var out []models.OfflineMessage
	err := dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := c.messagesRepo(tx)
		list, err := repo.List(ctx)
		if err != nil {
			return err
		}
		if err := repo.Clear(ctx); err != nil {
			return err
		}
		out = list
		return nil
	})
	if err != nil {
		c.logger.Warn(ctx, "failed to drain offline messages", "error", err)
		return nil
	}
	return out
}
