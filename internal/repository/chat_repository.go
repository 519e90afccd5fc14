// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"textlens-go/internal/model"

	"gorm.io/gorm"
)

// ChatRepository 定义了 Chat 记录的持久化操作。
// 未找到记录时返回 gorm.ErrRecordNotFound，由调用方决定如何对外呈现。
type ChatRepository interface {
	Create(ctx context.Context, chat *model.Chat) error
	FindByID(ctx context.Context, chatID string) (*model.Chat, error)
	FindByIDWithInteractions(ctx context.Context, chatID string) (*model.Chat, error)
	ListByUserID(ctx context.Context, userID uint) ([]model.Chat, error)
	UpdateTitle(ctx context.Context, chatID, title string, status model.ChatStatus) error
	UpdateStatus(ctx context.Context, chatID string, status model.ChatStatus) error
	DeleteWithInteractions(ctx context.Context, chatID string) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) Create(ctx context.Context, chat *model.Chat) error {
	return r.db.WithContext(ctx).Create(chat).Error
}

func (r *chatRepository) FindByID(ctx context.Context, chatID string) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.WithContext(ctx).Where("id = ?", chatID).First(&chat).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

// FindByIDWithInteractions 同时加载按创建时间升序排列的全部问答。
func (r *chatRepository) FindByIDWithInteractions(ctx context.Context, chatID string) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.WithContext(ctx).
		Preload("Interactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", chatID).
		First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListByUserID 返回用户的全部对话，最新的在前；不加载识别文本。
func (r *chatRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Chat, error) {
	var chats []model.Chat
	err := r.db.WithContext(ctx).
		Select("id", "user_id", "title", "image_url", "status", "created_at").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&chats).Error
	return chats, err
}

func (r *chatRepository) UpdateTitle(ctx context.Context, chatID, title string, status model.ChatStatus) error {
	return r.db.WithContext(ctx).Model(&model.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]interface{}{"title": title, "status": status}).Error
}

func (r *chatRepository) UpdateStatus(ctx context.Context, chatID string, status model.ChatStatus) error {
	return r.db.WithContext(ctx).Model(&model.Chat{}).
		Where("id = ?", chatID).
		Update("status", status).Error
}

// DeleteWithInteractions 在同一事务中先删除问答再删除对话，
// 不依赖数据库外键的级联设置。
func (r *chatRepository) DeleteWithInteractions(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Interaction{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", chatID).Delete(&model.Chat{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
