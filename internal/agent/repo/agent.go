package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/replyforge/server/internal/agent/model"
	errx "github.com/replyforge/server/internal/core/error"
)

// GormAgentRepository persists agents in the relational store.
type GormAgentRepository struct {
	db *gorm.DB
}

func NewGormAgentRepository(db *gorm.DB) *GormAgentRepository {
	return &GormAgentRepository{db: db}
}

// Create inserts the agent as the owner's active agent. The owner's other
// agents are deactivated in the same transaction, so at most one stays active.
func (r *GormAgentRepository) Create(ctx context.Context, agent *model.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	agent.Active = true

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Agent{}).
			Where("user_id = ? AND active = ?", agent.UserID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Create(agent).Error
	})
	if err != nil {
		return errx.WrapStore(fmt.Errorf("create agent: %w", err))
	}
	return nil
}

func (r *GormAgentRepository) GetByID(ctx context.Context, agentID string) (*model.Agent, error) {
	var agent model.Agent
	if err := r.db.WithContext(ctx).First(&agent, "id = ?", agentID).Error; err != nil {
		return nil, errx.WrapStore(fmt.Errorf("get agent %s: %w", agentID, err))
	}
	return &agent, nil
}

// Publish activates the agent and deactivates the owner's siblings.
func (r *GormAgentRepository) Publish(ctx context.Context, userID, agentID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Agent{}).
			Where("user_id = ? AND id <> ?", userID, agentID).
			Update("active", false).Error; err != nil {
			return err
		}
		res := tx.Model(&model.Agent{}).
			Where("user_id = ? AND id = ?", userID, agentID).
			Update("active", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return errx.WrapStore(fmt.Errorf("publish agent %s: %w", agentID, err))
	}
	return nil
}

// Delete removes the agent. Conversation logs are intentionally retained.
func (r *GormAgentRepository) Delete(ctx context.Context, userID, agentID string) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.Agent{}, "id = ?", agentID)
	if res.Error != nil {
		return errx.WrapStore(fmt.Errorf("delete agent %s: %w", agentID, res.Error))
	}
	if res.RowsAffected == 0 {
		return errx.WrapStore(fmt.Errorf("delete agent %s: %w", agentID, gorm.ErrRecordNotFound))
	}
	return nil
}

var _ model.AgentRepository = (*GormAgentRepository)(nil)
