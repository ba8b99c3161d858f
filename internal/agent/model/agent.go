package model

import (
	"context"
	"time"
)

// AgentOptions carries the optional prompt modifiers configured per agent.
type AgentOptions struct {
	Industry         string `json:"industry,omitempty"`
	ToolInstructions string `json:"tool_instructions,omitempty"`
	BusinessHours    string `json:"business_hours,omitempty"`
	Promotions       string `json:"promotions,omitempty"`
}

// Agent is a user-owned WhatsApp agent configuration.
// At most one agent per user is conventionally active; the repository
// deactivates siblings when an agent is created or published.
type Agent struct {
	ID               string       `gorm:"primaryKey" json:"id"`
	UserID           string       `gorm:"index" json:"user_id"`
	DisplayName      string       `json:"display_name"`
	SystemPrompt     string       `json:"system_prompt"`
	KnowledgeBaseIDs []string     `gorm:"serializer:json" json:"knowledge_base_ids"`
	Options          AgentOptions `gorm:"serializer:json" json:"options"`
	Active           bool         `json:"active"`
	SessionID        string       `json:"session_id"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// AgentRepository manages agent records.
type AgentRepository interface {
	// Create inserts the agent and deactivates the owner's other agents in the
	// same transaction.
	Create(ctx context.Context, agent *Agent) error

	// GetByID returns the agent or an errx.AppError with 404 when missing.
	GetByID(ctx context.Context, agentID string) (*Agent, error)

	// Publish activates the agent and deactivates the owner's other agents.
	Publish(ctx context.Context, userID, agentID string) error

	// Delete removes the agent owned by the user. Conversation logs are kept.
	Delete(ctx context.Context, userID, agentID string) error
}
