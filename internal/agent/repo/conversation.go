package repo

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/replyforge/server/internal/agent/model"
	errx "github.com/replyforge/server/internal/core/error"
)

// GormConversationLogRepository appends exchange records. Rows are immutable
// once written.
type GormConversationLogRepository struct {
	db *gorm.DB
}

func NewGormConversationLogRepository(db *gorm.DB) *GormConversationLogRepository {
	return &GormConversationLogRepository{db: db}
}

func (r *GormConversationLogRepository) Record(ctx context.Context, entry *model.ConversationLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errx.WrapStore(fmt.Errorf("record conversation: %w", err))
	}
	return nil
}

func (r *GormConversationLogRepository) ListBySender(ctx context.Context, senderNumber string, limit int) ([]model.ConversationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []model.ConversationLog
	err := r.db.WithContext(ctx).
		Where("sender_number = ?", senderNumber).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("list conversations for %s: %w", senderNumber, err))
	}
	return entries, nil
}

var _ model.ConversationLogRepository = (*GormConversationLogRepository)(nil)

// Migrate creates the relational schema for agents and conversation logs.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Agent{}, &model.ConversationLog{})
}
