package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"textlens-go/internal/repository"
	"time"

	"gorm.io/gorm"
)

// 消息发送方
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// ChatMessage 是由问答记录派生出的前端消息，不持久化。
type ChatMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// InteractionService 将问答记录展开为按时间排列的消息流。
type InteractionService interface {
	ListMessages(ctx context.Context, userID uint, chatID string) ([]ChatMessage, error)
	Remove(ctx context.Context, userID uint, interactionID string) (*Confirmation, error)
}

type interactionService struct {
	chatRepo        repository.ChatRepository
	interactionRepo repository.InteractionRepository
}

// NewInteractionService 创建一个新的 InteractionService 实例。
func NewInteractionService(chatRepo repository.ChatRepository, interactionRepo repository.InteractionRepository) InteractionService {
	return &interactionService{chatRepo: chatRepo, interactionRepo: interactionRepo}
}

// ListMessages 每轮问答展开为 user、ai 两条消息；开场摘要只有 ai 一条。
func (s *interactionService) ListMessages(ctx context.Context, userID uint, chatID string) ([]ChatMessage, error) {
	if err := requireChatID(chatID); err != nil {
		return nil, err
	}
	if _, err := loadOwnedChat(ctx, s.chatRepo.FindByID, userID, chatID); err != nil {
		return nil, err
	}

	interactions, err := s.interactionRepo.ListByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("查询问答失败: %w", err)
	}

	messages := make([]ChatMessage, 0, len(interactions)*2)
	for _, it := range interactions {
		if !it.IsSummary() {
			messages = append(messages, ChatMessage{ID: it.ID, Sender: SenderUser, Content: it.Question, CreatedAt: it.CreatedAt})
		}
		messages = append(messages, ChatMessage{ID: it.ID, Sender: SenderAI, Content: it.Answer, CreatedAt: it.CreatedAt})
	}
	return messages, nil
}

// Remove 删除一轮问答，所属对话必须属于当前用户。
// 不存在与无权访问对调用方不可区分。
func (s *interactionService) Remove(ctx context.Context, userID uint, interactionID string) (*Confirmation, error) {
	if strings.TrimSpace(interactionID) == "" {
		return nil, fmt.Errorf("%w: ID de interação inválido", ErrInvalidInput)
	}

	it, err := s.interactionRepo.FindByID(ctx, interactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInteractionNotFound
		}
		return nil, fmt.Errorf("查询问答失败: %w", err)
	}
	// 对话不存在或不属于当前用户时，与问答不存在返回同一个错误
	if _, err := loadOwnedChat(ctx, s.chatRepo.FindByID, userID, it.ChatID); err != nil {
		if errors.Is(err, ErrChatNotFound) {
			return nil, ErrInteractionNotFound
		}
		return nil, err
	}

	if err := s.interactionRepo.Delete(ctx, it.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInteractionNotFound
		}
		return nil, fmt.Errorf("删除问答失败: %w", err)
	}
	return &Confirmation{Message: "Interação removida com sucesso"}, nil
}
