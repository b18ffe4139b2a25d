// Package messages keeps the queue of chat messages that could not be sent
// while the client was offline.
package messages

import (
	"context"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
)

type Repository interface {
	Enqueue(ctx context.Context, m models.OfflineMessage) error
	List(ctx context.Context) ([]models.OfflineMessage, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}
