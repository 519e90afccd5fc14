package repository

import (
	"context"
	"textlens-go/internal/model"

	"gorm.io/gorm"
)

// InteractionRepository 定义了问答记录的持久化操作。
type InteractionRepository interface {
	Create(ctx context.Context, interaction *model.Interaction) error
	FindByID(ctx context.Context, interactionID string) (*model.Interaction, error)
	ListByChatID(ctx context.Context, chatID string) ([]model.Interaction, error)
	FindSummary(ctx context.Context, chatID string) (*model.Interaction, error)
	Delete(ctx context.Context, interactionID string) error
}

type interactionRepository struct {
	db *gorm.DB
}

// NewInteractionRepository 创建一个新的 InteractionRepository 实例。
func NewInteractionRepository(db *gorm.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

func (r *interactionRepository) Create(ctx context.Context, interaction *model.Interaction) error {
	return r.db.WithContext(ctx).Create(interaction).Error
}

func (r *interactionRepository) FindByID(ctx context.Context, interactionID string) (*model.Interaction, error) {
	var interaction model.Interaction
	if err := r.db.WithContext(ctx).Where("id = ?", interactionID).First(&interaction).Error; err != nil {
		return nil, err
	}
	return &interaction, nil
}

// ListByChatID 按创建时间升序返回对话内的全部问答。
func (r *interactionRepository) ListByChatID(ctx context.Context, chatID string) ([]model.Interaction, error) {
	var interactions []model.Interaction
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Find(&interactions).Error
	return interactions, err
}

// FindSummary 返回对话的开场摘要（question 为空的最早一条）。
func (r *interactionRepository) FindSummary(ctx context.Context, chatID string) (*model.Interaction, error) {
	var interaction model.Interaction
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND question = ?", chatID, "").
		Order("created_at ASC").
		First(&interaction).Error
	if err != nil {
		return nil, err
	}
	return &interaction, nil
}

func (r *interactionRepository) Delete(ctx context.Context, interactionID string) error {
	res := r.db.WithContext(ctx).Where("id = ?", interactionID).Delete(&model.Interaction{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
