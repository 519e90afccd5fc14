// Package service 包含了应用的业务逻辑层。
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"textlens-go/internal/model"
	"textlens-go/internal/repository"
	"textlens-go/pkg/llm"
	"textlens-go/pkg/log"
	"textlens-go/pkg/ocr"
	"textlens-go/pkg/tasks"
	"textlens-go/pkg/tika"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TextExtractor 从图片中识别文字，由 ocr.Client 或 tika.Client 实现。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// ImageStore 保存用户上传的原始图片，由 storage.ImageStore 实现。
type ImageStore interface {
	Save(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, objectKey string) error
	PresignedURL(ctx context.Context, objectKey string) (string, error)
}

// IndexPublisher 发布对话索引任务，由 kafka.Producer 实现。
type IndexPublisher interface {
	PublishChatTask(ctx context.Context, task tasks.ChatIndexTask) error
}

// NoopPublisher 在未启用 Kafka 时丢弃所有索引任务。
type NoopPublisher struct{}

func (NoopPublisher) PublishChatTask(context.Context, tasks.ChatIndexTask) error { return nil }

// ImageUpload 是一次上传的图片内容。
type ImageUpload struct {
	FileName string
	Data     []byte
}

// ChatCreated 是创建（或续跑）对话后的返回结果。
type ChatCreated struct {
	ID            string `json:"id"`
	UserID        uint   `json:"userId"`
	ImageURL      string `json:"imageUrl"`
	ExtractedText string `json:"extractedText"`
	Title         string `json:"title"`
}

// ChatSummary 是对话列表中的一项。
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ImageURL  string    `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// InteractionView 是对话详情中的一轮问答。
type InteractionView struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatDetail 是单个对话的完整内容。
type ChatDetail struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	ExtractedText string            `json:"extractedText"`
	Interactions  []InteractionView `json:"interactions"`
}

// MessageResponse 是一次追问的结果。
type MessageResponse struct {
	ID       string `json:"id"`
	ChatID   string `json:"chatId"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Confirmation 是写操作成功后的提示信息。
type Confirmation struct {
	Message string `json:"message"`
}

// ChatService 定义了对话生命周期的全部操作。
type ChatService interface {
	CreateChat(ctx context.Context, userID uint, image ImageUpload) (*ChatCreated, error)
	ResumeChat(ctx context.Context, userID uint, chatID string) (*ChatCreated, error)
	SendMessage(ctx context.Context, userID uint, chatID, message string) (*MessageResponse, error)
	StreamMessage(ctx context.Context, userID uint, chatID, message string, writer llm.ChunkWriter) (*MessageResponse, error)
	ListChats(ctx context.Context, userID uint) ([]ChatSummary, error)
	GetChat(ctx context.Context, userID uint, chatID string) (*ChatDetail, error)
	UpdateTitle(ctx context.Context, userID uint, chatID, title string) (*Confirmation, error)
	DeleteChat(ctx context.Context, userID uint, chatID string) (*Confirmation, error)
	ImageURL(ctx context.Context, userID uint, chatID string) (string, error)
}

type chatService struct {
	chatRepo        repository.ChatRepository
	interactionRepo repository.InteractionRepository
	extractor       TextExtractor
	llmClient       llm.Client
	images          ImageStore
	publisher       IndexPublisher
	prompts         PromptBuilder
	maxImageBytes   int64
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	chatRepo repository.ChatRepository,
	interactionRepo repository.InteractionRepository,
	extractor TextExtractor,
	llmClient llm.Client,
	images ImageStore,
	publisher IndexPublisher,
	prompts PromptBuilder,
	maxImageBytes int64,
) ChatService {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &chatService{
		chatRepo:        chatRepo,
		interactionRepo: interactionRepo,
		extractor:       extractor,
		llmClient:       llmClient,
		images:          images,
		publisher:       publisher,
		prompts:         prompts,
		maxImageBytes:   maxImageBytes,
	}
}

// CreateChat 执行完整的创建流程：保存图片 → 识别文字 → 写入对话 → 摘要 → 标题。
// 摘要失败时对话停留在 text_extracted 状态，可通过 ResumeChat 续跑。
func (s *chatService) CreateChat(ctx context.Context, userID uint, image ImageUpload) (*ChatCreated, error) {
	mtype, err := s.validateImage(image.Data)
	if err != nil {
		return nil, err
	}

	// 1. 保存原图
	objectKey := fmt.Sprintf("chats/%d/%s%s", userID, uuid.NewString(), mtype.Extension())
	if _, err := s.images.Save(ctx, objectKey, bytes.NewReader(image.Data), int64(len(image.Data)), mtype.String()); err != nil {
		return nil, fmt.Errorf("保存图片失败: %w", err)
	}

	// 2. 识别文字
	text, err := s.extractor.ExtractText(ctx, bytes.NewReader(image.Data), image.FileName)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrNoTextRecognized
	}
	if err != nil {
		log.Errorf("[ChatService] 文字识别失败, userID: %d, error: %v", userID, err)
		s.removeImage(ctx, objectKey)
		return nil, extractionError(err)
	}

	// 3. 写入对话
	chat := &model.Chat{
		UserID:        userID,
		ImageURL:      objectKey,
		ExtractedText: text,
		Status:        model.ChatStatusTextExtracted,
	}
	if err := s.chatRepo.Create(ctx, chat); err != nil {
		s.removeImage(ctx, objectKey)
		return nil, fmt.Errorf("保存对话失败: %w", err)
	}
	log.Infof("[ChatService] 对话已创建, chatID: %s, userID: %d, 文本长度: %d", chat.ID, userID, len(text))

	// 4-5. 摘要与标题
	if err := s.advance(ctx, chat, ""); err != nil {
		return nil, err
	}

	s.publish(ctx, chat.ID, userID, tasks.ActionIndex)
	return newChatCreated(chat), nil
}

// ResumeChat 从持久化的状态继续一次中断的创建流程；已完成的对话原样返回。
func (s *chatService) ResumeChat(ctx context.Context, userID uint, chatID string) (*ChatCreated, error) {
	if err := requireChatID(chatID); err != nil {
		return nil, err
	}
	chat, err := loadOwnedChat(ctx, s.chatRepo.FindByID, userID, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Status == model.ChatStatusTitled {
		return newChatCreated(chat), nil
	}

	summary := ""
	if chat.Status == model.ChatStatusSummarized {
		it, err := s.interactionRepo.FindSummary(ctx, chat.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("查询摘要失败: %w", err)
		}
		if it != nil {
			summary = it.Answer
		}
	}

	log.Infof("[ChatService] 续跑对话创建流程, chatID: %s, status: %s", chat.ID, chat.Status)
	if err := s.advance(ctx, chat, summary); err != nil {
		return nil, err
	}
	s.publish(ctx, chat.ID, userID, tasks.ActionIndex)
	return newChatCreated(chat), nil
}

// advance 推进创建状态机：text_extracted → summarized → titled。
// summary 为已知的摘要内容，仅在从 summarized 开始时使用。
func (s *chatService) advance(ctx context.Context, chat *model.Chat, summary string) error {
	if chat.Status == model.ChatStatusTextExtracted {
		answer, err := s.llmClient.Complete(ctx, s.prompts.Summary(chat.ExtractedText))
		if err != nil {
			log.Errorf("[ChatService] 生成摘要失败, chatID: %s, error: %v", chat.ID, err)
			return fmt.Errorf("%w: %w", ErrCompletionFailed, err)
		}
		if err := s.interactionRepo.Create(ctx, &model.Interaction{ChatID: chat.ID, Question: "", Answer: answer}); err != nil {
			return fmt.Errorf("保存摘要失败: %w", err)
		}
		if err := s.chatRepo.UpdateStatus(ctx, chat.ID, model.ChatStatusSummarized); err != nil {
			return fmt.Errorf("更新对话状态失败: %w", err)
		}
		chat.Status = model.ChatStatusSummarized
		summary = answer
	}

	if chat.Status == model.ChatStatusSummarized {
		title := s.generateTitle(ctx, chat, summary)
		if err := s.chatRepo.UpdateTitle(ctx, chat.ID, title, model.ChatStatusTitled); err != nil {
			return fmt.Errorf("保存标题失败: %w", err)
		}
		chat.Title = title
		chat.Status = model.ChatStatusTitled
	}
	return nil
}

// generateTitle 请求模型生成标题，失败或为空时退回摘要的前四个词。
func (s *chatService) generateTitle(ctx context.Context, chat *model.Chat, summary string) string {
	resp, err := s.llmClient.Complete(ctx, s.prompts.Title(chat.ExtractedText))
	if err == nil {
		if title := firstLine(resp); title != "" {
			return title
		}
	}
	log.Warnf("[ChatService] 标题生成失败，使用摘要兜底, chatID: %s, error: %v", chat.ID, err)
	return fallbackTitle(summary)
}

// SendMessage 基于识别文本回答一个问题，并保存这一轮问答。
func (s *chatService) SendMessage(ctx context.Context, userID uint, chatID, message string) (*MessageResponse, error) {
	if err := requireChatID(chatID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: mensagem obrigatória", ErrInvalidInput)
	}
	chat, err := loadOwnedChat(ctx, s.chatRepo.FindByID, userID, chatID)
	if err != nil {
		return nil, err
	}

	answer, err := s.llmClient.Complete(ctx, s.prompts.Question(chat.ExtractedText, message))
	if err != nil {
		log.Errorf("[ChatService] 生成回答失败, chatID: %s, error: %v", chat.ID, err)
		return nil, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}
	return s.saveAnswer(ctx, chat.ID, message, answer)
}

// StreamMessage 与 SendMessage 相同，但回答以增量方式写入 writer，结束后再保存。
func (s *chatService) StreamMessage(ctx context.Context, userID uint, chatID, message string, writer llm.ChunkWriter) (*MessageResponse, error) {
	if err := requireChatID(chatID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: mensagem obrigatória", ErrInvalidInput)
	}
	chat, err := loadOwnedChat(ctx, s.chatRepo.FindByID, userID, chatID)
	if err != nil {
		return nil, err
	}

	msgs := []llm.Message{{Role: "user", Content: s.prompts.Question(chat.ExtractedText, message)}}
	answer, err := s.llmClient.StreamChatMessages(ctx, msgs, nil, writer)
	if err != nil {
		// 客户端断开不影响已生成答案的保存
		if !errors.Is(err, llm.ErrChunkWrite) || strings.TrimSpace(answer) == "" {
			log.Errorf("[ChatService] 流式生成回答失败, chatID: %s, error: %v", chat.ID, err)
			return nil, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
		}
		log.Warnf("[ChatService] 推送分块失败，仍保存完整回答, chatID: %s, error: %v", chat.ID, err)
	}
	return s.saveAnswer(context.WithoutCancel(ctx), chat.ID, message, answer)
}

func (s *chatService) saveAnswer(ctx context.Context, chatID, question, answer string) (*MessageResponse, error) {
	it := &model.Interaction{ChatID: chatID, Question: question, Answer: answer}
	if err := s.interactionRepo.Create(ctx, it); err != nil {
		return nil, fmt.Errorf("保存问答失败: %w", err)
	}
	return &MessageResponse{ID: it.ID, ChatID: it.ChatID, Question: it.Question, Answer: it.Answer}, nil
}

// ListChats 按创建时间倒序返回用户的对话。
func (s *chatService) ListChats(ctx context.Context, userID uint) ([]ChatSummary, error) {
	chats, err := s.chatRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询对话列表失败: %w", err)
	}
	out := make([]ChatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, ChatSummary{ID: c.ID, Title: c.Title, ImageURL: c.ImageURL, CreatedAt: c.CreatedAt})
	}
	return out, nil
}

// GetChat 返回对话的识别文本及按时间正序排列的问答。
func (s *chatService) GetChat(ctx context.Context, userID uint, chatID string) (*ChatDetail, error) {
	if err := requireChatID(chatID); err != nil {
		return nil, err
	}
	chat, err := loadOwnedChat(ctx, s.chatRepo.FindByIDWithInteractions, userID, chatID)
	if err != nil {
		return nil, err
	}

	detail := &ChatDetail{
		ID:            chat.ID,
		Title:         chat.Title,
		ExtractedText: chat.ExtractedText,
		Interactions:  make([]InteractionView, 0, len(chat.Interactions)),
	}
	for _, it := range chat.Interactions {
		detail.Interactions = append(detail.Interactions, InteractionView{
			ID:        it.ID,
			Question:  it.Question,
			Answer:    it.Answer,
			CreatedAt: it.CreatedAt,
		})
	}
	return detail, nil
}

// UpdateTitle 修改对话标题，不改变创建状态。
func (s *chatService) UpdateTitle(ctx context.Context, userID uint, chatID, title string) (*Confirmation, error) {
	if err := requireChatID(chatID); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: título obrigatório", ErrInvalidInput)
	}
	chat, err := loadOwnedChat(ctx, s.chatRepo.FindByID, userID, chatID)
	if err != nil {
		return nil, err
	}

	if err := s.chatRepo.UpdateTitle(ctx, chat.ID, title, chat.Status); err != nil {
		return nil, fmt.Errorf("更新标题失败: %w", err)
	}
	s.publish(ctx, chat.ID, userID, tasks.ActionIndex)
	return &Confirmation{Message: "Título atualizado com sucesso"}, nil
}

// DeleteChat 在同一事务中删除对话及其全部问答，随后尽力删除原图。
func (s *chatService) DeleteChat(ctx context.Context, userID uint, chatID string) (*Confirmation, error) {
	if err := requireChatID(chatID); err != nil {
		return nil, err
	}
	chat, err := loadOwnedChat(ctx, s.chatRepo.FindByID, userID, chatID)
	if err != nil {
		return nil, err
	}

	if err := s.chatRepo.DeleteWithInteractions(ctx, chat.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("删除对话失败: %w", err)
	}
	s.removeImage(ctx, chat.ImageURL)
	s.publish(ctx, chat.ID, userID, tasks.ActionDelete)
	log.Infof("[ChatService] 对话已删除, chatID: %s, userID: %d", chat.ID, userID)
	return &Confirmation{Message: "Chat removido com sucesso"}, nil
}

// ImageURL 返回对话原图的临时下载地址。
func (s *chatService) ImageURL(ctx context.Context, userID uint, chatID string) (string, error) {
	if err := requireChatID(chatID); err != nil {
		return "", err
	}
	chat, err := loadOwnedChat(ctx, s.chatRepo.FindByID, userID, chatID)
	if err != nil {
		return "", err
	}
	url, err := s.images.PresignedURL(ctx, chat.ImageURL)
	if err != nil {
		return "", fmt.Errorf("生成图片地址失败: %w", err)
	}
	return url, nil
}

// validateImage 按内容嗅探图片类型，只接受 PNG 与 JPEG。
func (s *chatService) validateImage(data []byte) (*mimetype.MIME, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: imagem obrigatória", ErrInvalidInput)
	}
	if s.maxImageBytes > 0 && int64(len(data)) > s.maxImageBytes {
		return nil, ErrImageTooLarge
	}
	mtype := mimetype.Detect(data)
	if !mtype.Is("image/png") && !mtype.Is("image/jpeg") {
		return nil, ErrUnsupportedImage
	}
	return mtype, nil
}

func (s *chatService) removeImage(ctx context.Context, objectKey string) {
	if err := s.images.Remove(context.WithoutCancel(ctx), objectKey); err != nil {
		log.Warnf("[ChatService] 删除图片失败, key: %s, error: %v", objectKey, err)
	}
}

// publish 发送索引任务；失败只记录日志，不影响主流程。
func (s *chatService) publish(ctx context.Context, chatID string, userID uint, action string) {
	task := tasks.ChatIndexTask{ChatID: chatID, UserID: userID, Action: action}
	if err := s.publisher.PublishChatTask(ctx, task); err != nil {
		log.Warnf("[ChatService] 发布索引任务失败, chatID: %s, action: %s, error: %v", chatID, action, err)
	}
}

func newChatCreated(chat *model.Chat) *ChatCreated {
	return &ChatCreated{
		ID:            chat.ID,
		UserID:        chat.UserID,
		ImageURL:      chat.ImageURL,
		ExtractedText: chat.ExtractedText,
		Title:         chat.Title,
	}
}

func requireChatID(chatID string) error {
	if strings.TrimSpace(chatID) == "" {
		return fmt.Errorf("%w: ID de chat obrigatório", ErrInvalidInput)
	}
	return nil
}

// loadOwnedChat 合并存在性与归属检查：不存在和不属于该用户都返回 ErrChatNotFound。
func loadOwnedChat(ctx context.Context, find func(context.Context, string) (*model.Chat, error), userID uint, chatID string) (*model.Chat, error) {
	chat, err := find(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("查询对话失败: %w", err)
	}
	if !chat.OwnedBy(userID) {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

// extractionError 区分“没有识别出文字”与其他识别失败。
func extractionError(err error) error {
	switch {
	case errors.Is(err, ErrNoTextRecognized):
		return err
	case errors.Is(err, ocr.ErrNoTextRecognized), errors.Is(err, tika.ErrNoTextRecognized):
		return fmt.Errorf("%w: %w", ErrNoTextRecognized, err)
	default:
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
}
