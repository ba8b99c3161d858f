package model

import (
	"context"
	"time"
)

// ConversationLog is one immutable user/agent exchange. Append-only.
type ConversationLog struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"index" json:"user_id"`
	AgentID       string    `gorm:"index" json:"agent_id"`
	SenderNumber  string    `gorm:"index" json:"sender_number"`
	UserMessage   string    `json:"user_message"`
	AgentResponse string    `json:"agent_response"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConversationLogRepository durably records exchanges. Record is best-effort
// from the pipeline's perspective: callers log failures and move on.
type ConversationLogRepository interface {
	Record(ctx context.Context, entry *ConversationLog) error

	// ListBySender returns the most recent exchanges for a sender number,
	// newest first, at most limit rows.
	ListBySender(ctx context.Context, senderNumber string, limit int) ([]ConversationLog, error)
}
