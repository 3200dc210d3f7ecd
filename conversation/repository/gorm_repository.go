package repository

import (
	"context"
	"errors"
	"fmt"

	"corpflow-chat/backend/conversation/models"

	"gorm.io/gorm"
)

// GormConversationRepository stores conversations in postgres through gorm
type GormConversationRepository struct {
	db *gorm.DB
}

func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

// Migrate creates or updates the conversation tables
func (r *GormConversationRepository) Migrate() error {
	if err := r.db.AutoMigrate(&models.Conversation{}, &models.Message{}); err != nil {
		return fmt.Errorf("migrate conversations: %w", err)
	}
	return r.db.Exec("CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at)").Error
}

func (r *GormConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	return r.db.WithContext(ctx).Omit("Messages").Create(conv).Error
}

func (r *GormConversationRepository) Get(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *GormConversationRepository) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&convs).Error
	return convs, err
}

func (r *GormConversationRepository) Save(ctx context.Context, conv *models.Conversation) error {
	res := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Updates(map[string]interface{}{
			"title":        conv.Title,
			"last_message": conv.LastMessage,
			"updated_at":   conv.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormConversationRepository) AppendMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			Updates(map[string]interface{}{
				"title":        conv.Title,
				"last_message": conv.LastMessage,
				"updated_at":   conv.UpdatedAt,
			}).Error
	})
}

func (r *GormConversationRepository) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&messages).Error
	return messages, err
}

func (r *GormConversationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Conversation{}).Error
	})
}

func (r *GormConversationRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
