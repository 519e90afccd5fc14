package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"textlens-go/internal/model"
	"textlens-go/pkg/llm"
	"textlens-go/pkg/tasks"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// store 是 Chat 与 Interaction 仓储共用的内存存储。
type store struct {
	mu           sync.Mutex
	chats        map[string]*model.Chat
	interactions map[string]*model.Interaction
	clock        time.Time
	calls        int
}

func newStore() *store {
	return &store{
		chats:        map[string]*model.Chat{},
		interactions: map[string]*model.Interaction{},
		clock:        time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

type fakeChatRepo struct{ *store }

func (r fakeChatRepo) Create(_ context.Context, chat *model.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = r.tick()
	}
	c := *chat
	r.chats[c.ID] = &c
	return nil
}

func (r fakeChatRepo) FindByID(_ context.Context, chatID string) (*model.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	c, ok := r.chats[chatID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (r fakeChatRepo) FindByIDWithInteractions(ctx context.Context, chatID string) (*model.Chat, error) {
	chat, err := r.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	chat.Interactions = r.list(chatID)
	return chat, nil
}

func (r fakeChatRepo) ListByUserID(_ context.Context, userID uint) ([]model.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	var out []model.Chat
	for _, c := range r.chats {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r fakeChatRepo) UpdateTitle(_ context.Context, chatID, title string, status model.ChatStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	c, ok := r.chats[chatID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Title, c.Status = title, status
	return nil
}

func (r fakeChatRepo) UpdateStatus(_ context.Context, chatID string, status model.ChatStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	c, ok := r.chats[chatID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Status = status
	return nil
}

func (r fakeChatRepo) DeleteWithInteractions(_ context.Context, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if _, ok := r.chats[chatID]; !ok {
		return gorm.ErrRecordNotFound
	}
	for id, it := range r.interactions {
		if it.ChatID == chatID {
			delete(r.interactions, id)
		}
	}
	delete(r.chats, chatID)
	return nil
}

func (s *store) list(chatID string) []model.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Interaction
	for _, it := range s.interactions {
		if it.ChatID == chatID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type fakeInteractionRepo struct{ *store }

func (r fakeInteractionRepo) Create(_ context.Context, it *model.Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = r.tick()
	}
	cp := *it
	r.interactions[cp.ID] = &cp
	return nil
}

func (r fakeInteractionRepo) FindByID(_ context.Context, id string) (*model.Interaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	it, ok := r.interactions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *it
	return &cp, nil
}

func (r fakeInteractionRepo) ListByChatID(_ context.Context, chatID string) ([]model.Interaction, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.list(chatID), nil
}

func (r fakeInteractionRepo) FindSummary(_ context.Context, chatID string) (*model.Interaction, error) {
	for _, it := range r.list(chatID) {
		if it.IsSummary() {
			return &it, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeInteractionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if _, ok := r.interactions[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.interactions, id)
	return nil
}

type fakeExtractor struct {
	text  string
	err   error
	calls int
}

func (f *fakeExtractor) ExtractText(_ context.Context, r io.Reader, _ string) (string, error) {
	f.calls++
	_, _ = io.ReadAll(r)
	return f.text, f.err
}

// fakeLLM 按调用顺序依次返回预设结果。
type fakeLLM struct {
	replies []reply
	prompts []string
}

type reply struct {
	text string
	err  error
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if len(f.replies) == 0 {
		return "", errors.New("unexpected completion call")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.text, r.err
}

func (f *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, _ *llm.GenerationParams, w llm.ChunkWriter) (string, error) {
	text, err := f.Complete(ctx, messages[len(messages)-1].Content)
	if err != nil {
		return "", err
	}
	var writeErr error
	for _, word := range splitKeep(text) {
		if writeErr != nil {
			break
		}
		if err := w.WriteChunk(word); err != nil {
			writeErr = fmt.Errorf("%w: %w", llm.ErrChunkWrite, err)
		}
	}
	return text, writeErr
}

// splitKeep 把文本拆成两段，模拟流式分块。
func splitKeep(s string) []string {
	if len(s) < 2 {
		return []string{s}
	}
	return []string{s[:len(s)/2], s[len(s)/2:]}
}

type fakeImages struct {
	saved   map[string][]byte
	removed []string
	saveErr error
	calls   int
}

func newFakeImages() *fakeImages { return &fakeImages{saved: map[string][]byte{}} }

func (f *fakeImages) Save(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	f.calls++
	if f.saveErr != nil {
		return "", f.saveErr
	}
	b, _ := io.ReadAll(r)
	f.saved[key] = b
	return key, nil
}

func (f *fakeImages) Remove(_ context.Context, key string) error {
	f.calls++
	f.removed = append(f.removed, key)
	delete(f.saved, key)
	return nil
}

func (f *fakeImages) PresignedURL(_ context.Context, key string) (string, error) {
	f.calls++
	return "https://minio.local/textlens-images/" + key + "?X-Amz-Signature=abc", nil
}

type fakePublisher struct {
	tasks []tasks.ChatIndexTask
	err   error
}

func (f *fakePublisher) PublishChatTask(_ context.Context, t tasks.ChatIndexTask) error {
	f.tasks = append(f.tasks, t)
	return f.err
}

// 最小合法的 PNG 与 JPEG 文件头。
var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)
