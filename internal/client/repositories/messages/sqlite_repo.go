package messages

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, m models.OfflineMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO offline_messages (id, conversation_id, body, created_at)
		VALUES (?, ?, ?, ?)
	`, m.ID, m.ConversationID, m.Body, m.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to enqueue offline message: %w", err)
	}
	return nil
}

// List returns queued messages in the order they were enqueued.
func (r *SQLiteRepository) List(ctx context.Context) ([]models.OfflineMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, body, created_at
		FROM offline_messages
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list offline messages: %w", err)
	}
	defer rows.Close()

	var result []models.OfflineMessage
	for rows.Next() {
		var (
			m       models.OfflineMessage
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Body, &created); err != nil {
			return nil, fmt.Errorf("failed to scan offline message: %w", err)
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate offline messages: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM offline_messages`); err != nil {
		return fmt.Errorf("failed to clear offline messages: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count offline messages: %w", err)
	}
	return n, nil
}
