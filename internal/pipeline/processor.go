// Package pipeline 定义了对话索引的后台处理流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"textlens-go/internal/model"
	"textlens-go/internal/repository"
	"textlens-go/pkg/embedding"
	"textlens-go/pkg/log"
	"textlens-go/pkg/tasks"

	"gorm.io/gorm"
)

// ChatIndexer 是搜索索引的写入端，由 es.ChatIndex 实现。
type ChatIndexer interface {
	Index(ctx context.Context, doc model.ChatDocument) error
	Delete(ctx context.Context, chatID string) error
}

// Processor 封装了对话索引的所有依赖和逻辑。
type Processor struct {
	chatRepo        repository.ChatRepository
	indexer         ChatIndexer
	embeddingClient embedding.Client // 可为 nil，此时只建立全文索引
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(chatRepo repository.ChatRepository, indexer ChatIndexer, embeddingClient embedding.Client) *Processor {
	return &Processor{
		chatRepo:        chatRepo,
		indexer:         indexer,
		embeddingClient: embeddingClient,
	}
}

// Process 根据任务动作索引或删除对话。
func (p *Processor) Process(ctx context.Context, task tasks.ChatIndexTask) error {
	log.Infof("[Processor] 开始处理索引任务, ChatID: %s, Action: %s", task.ChatID, task.Action)

	switch task.Action {
	case tasks.ActionDelete:
		return p.indexer.Delete(ctx, task.ChatID)
	case tasks.ActionIndex:
		return p.index(ctx, task.ChatID)
	default:
		log.Warnf("[Processor] 未知的任务动作 '%s'，忽略", task.Action)
		return nil
	}
}

func (p *Processor) index(ctx context.Context, chatID string) error {
	chat, err := p.chatRepo.FindByIDWithInteractions(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 任务发出后对话已被删除
			log.Infof("[Processor] 对话 %s 已不存在，从索引中移除", chatID)
			return p.indexer.Delete(ctx, chatID)
		}
		return fmt.Errorf("加载对话失败: %w", err)
	}

	doc := model.ChatDocument{
		ChatID:        chat.ID,
		UserID:        chat.UserID,
		Title:         chat.Title,
		ExtractedText: chat.ExtractedText,
		ImageURL:      chat.ImageURL,
		CreatedAt:     chat.CreatedAt,
	}
	for _, it := range chat.Interactions {
		if it.IsSummary() {
			doc.Summary = it.Answer
			break
		}
	}

	if p.embeddingClient != nil {
		vector, err := p.embeddingClient.CreateEmbedding(ctx, embeddingInput(doc))
		if err != nil {
			return fmt.Errorf("向量化失败: %w", err)
		}
		doc.Vector = vector
		doc.ModelVersion = p.embeddingClient.Model()
	}

	if err := p.indexer.Index(ctx, doc); err != nil {
		return fmt.Errorf("写入索引失败: %w", err)
	}
	log.Infof("[Processor] 对话 %s 索引完成", chatID)
	return nil
}

func embeddingInput(doc model.ChatDocument) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{doc.Title, doc.Summary, doc.ExtractedText} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// InlinePublisher 在未启用 Kafka 时于请求内同步处理索引任务。
type InlinePublisher struct {
	Processor *Processor
}

func (p InlinePublisher) PublishChatTask(ctx context.Context, task tasks.ChatIndexTask) error {
	return p.Processor.Process(context.WithoutCancel(ctx), task)
}
