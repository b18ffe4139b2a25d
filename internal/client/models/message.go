package models

import "time"

// OfflineMessage is a chat message composed while the backend was
// unreachable, kept locally until it can be sent.
type OfflineMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}
