package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"textlens-go/internal/config"
	"textlens-go/internal/model"
	"textlens-go/pkg/llm"
	"textlens-go/pkg/ocr"
	"textlens-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner    uint = 1
	stranger uint = 2
)

type harness struct {
	st     *store
	chats  fakeChatRepo
	its    fakeInteractionRepo
	ext    *fakeExtractor
	llm    *fakeLLM
	images *fakeImages
	pub    *fakePublisher
	svc    ChatService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := newStore()
	h := &harness{
		st:     st,
		chats:  fakeChatRepo{st},
		its:    fakeInteractionRepo{st},
		ext:    &fakeExtractor{text: "Nota fiscal número 123\nTotal: R$ 45,90"},
		llm:    &fakeLLM{},
		images: newFakeImages(),
		pub:    &fakePublisher{},
	}
	h.svc = NewChatService(h.chats, h.its, h.ext, h.llm, h.images, h.pub, NewPromptBuilder(config.LLMPromptConfig{}), 5*1024*1024)
	return h
}

// seedChat 直接写入一个已完成的对话及其摘要。
func (h *harness) seedChat(t *testing.T, userID uint) *model.Chat {
	t.Helper()
	chat := &model.Chat{UserID: userID, ImageURL: "chats/x.png", ExtractedText: "texto", Title: "Título", Status: model.ChatStatusTitled}
	require.NoError(t, h.chats.Create(context.Background(), chat))
	require.NoError(t, h.its.Create(context.Background(), &model.Interaction{ChatID: chat.ID, Answer: "resumo"}))
	return chat
}

func TestCreateChat_FullWorkflow(t *testing.T) {
	h := newHarness(t)
	h.llm.replies = []reply{{text: "Uma nota fiscal de R$ 45,90."}, {text: "\n Nota Fiscal 123 \nOutra linha"}}

	created, err := h.svc.CreateChat(context.Background(), owner, ImageUpload{FileName: "nota.png", Data: pngBytes})
	require.NoError(t, err)

	assert.Equal(t, h.ext.text, created.ExtractedText)
	assert.Equal(t, "Nota Fiscal 123", created.Title)
	assert.Equal(t, owner, created.UserID)
	assert.True(t, strings.HasPrefix(created.ImageURL, "chats/1/"))
	assert.True(t, strings.HasSuffix(created.ImageURL, ".png"))
	assert.Equal(t, pngBytes, h.images.saved[created.ImageURL])

	require.Len(t, h.llm.prompts, 2)
	assert.Equal(t,
		"Você é um assistente que responde com base no texto extraído.\nTexto extraído: "+h.ext.text+"\nPor favor, forneça um resumo.",
		h.llm.prompts[0])
	assert.Equal(t,
		"Você é um assistente que cria títulos:\ngere um título curto (até 5 palavras).\nTexto extraído: "+h.ext.text,
		h.llm.prompts[1])

	stored, err := h.chats.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChatStatusTitled, stored.Status)
	assert.Equal(t, "Nota Fiscal 123", stored.Title)

	its := h.st.list(created.ID)
	require.Len(t, its, 1)
	assert.Equal(t, "", its[0].Question)
	assert.Equal(t, "Uma nota fiscal de R$ 45,90.", its[0].Answer)

	assert.Equal(t, []tasks.ChatIndexTask{{ChatID: created.ID, UserID: owner, Action: tasks.ActionIndex}}, h.pub.tasks)
}

func TestCreateChat_TitleFallback(t *testing.T) {
	tests := []struct {
		name  string
		title reply
	}{
		{name: "completion error", title: reply{err: errors.New("rate limited")}},
		{name: "blank first line", title: reply{text: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.llm.replies = []reply{{text: "isto é um resumo muito longo"}, tt.title}

			created, err := h.svc.CreateChat(context.Background(), owner, ImageUpload{FileName: "a.jpg", Data: jpegBytes})
			require.NoError(t, err)
			assert.Equal(t, "isto é um resumo", created.Title)
			assert.True(t, strings.HasSuffix(created.ImageURL, ".jpg"))
		})
	}
}

func TestCreateChat_ExtractionFailure(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		err     error
		wantErr error
	}{
		{name: "service down", err: errors.New("connection refused"), wantErr: ErrExtractionFailed},
		{name: "no text", err: fmt.Errorf("wrapped: %w", ocr.ErrNoTextRecognized), wantErr: ErrNoTextRecognized},
		{name: "blank text", text: "  \n ", wantErr: ErrNoTextRecognized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.ext.text, h.ext.err = tt.text, tt.err

			_, err := h.svc.CreateChat(context.Background(), owner, ImageUpload{FileName: "a.png", Data: pngBytes})
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Empty(t, h.st.chats)
			assert.Empty(t, h.llm.prompts)
			assert.Empty(t, h.images.saved)
			assert.Len(t, h.images.removed, 1)
			assert.Empty(t, h.pub.tasks)
		})
	}
}

func TestCreateChat_RejectsBadImagesBeforeAnyCall(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "empty", data: nil, wantErr: ErrInvalidInput},
		{name: "gif", data: []byte("GIF89a\x01\x00\x01\x00"), wantErr: ErrUnsupportedImage},
		{name: "text", data: []byte("hello"), wantErr: ErrUnsupportedImage},
		{name: "too large", data: append(append([]byte{}, pngBytes...), make([]byte, 5*1024*1024)...), wantErr: ErrImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.CreateChat(context.Background(), owner, ImageUpload{FileName: "x", Data: tt.data})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, h.images.calls)
			assert.Zero(t, h.ext.calls)
			assert.Zero(t, h.st.calls)
		})
	}
}

func TestCreateChat_ImageStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.images.saveErr = errors.New("minio down")

	_, err := h.svc.CreateChat(context.Background(), owner, ImageUpload{FileName: "a.png", Data: pngBytes})
	require.Error(t, err)
	assert.Zero(t, h.ext.calls)
	assert.Empty(t, h.st.chats)
}

func TestCreateChat_SummaryFailureLeavesResumableChat(t *testing.T) {
	h := newHarness(t)
	h.llm.replies = []reply{{err: errors.New("401 unauthorized")}}

	_, err := h.svc.CreateChat(context.Background(), owner, ImageUpload{FileName: "a.png", Data: pngBytes})
	assert.ErrorIs(t, err, ErrCompletionFailed)

	require.Len(t, h.st.chats, 1)
	var stranded *model.Chat
	for _, c := range h.st.chats {
		stranded = c
	}
	assert.Equal(t, model.ChatStatusTextExtracted, stranded.Status)
	assert.Empty(t, h.st.list(stranded.ID))
	assert.Empty(t, h.pub.tasks)

	// 续跑：摘要与标题都在这一步生成
	h.llm.replies = []reply{{text: "um resumo curto da nota"}, {text: "Nota"}}
	resumed, err := h.svc.ResumeChat(context.Background(), owner, stranded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nota", resumed.Title)
	assert.Equal(t, h.ext.text, resumed.ExtractedText)

	its := h.st.list(stranded.ID)
	require.Len(t, its, 1)
	assert.True(t, its[0].IsSummary())
	assert.Equal(t, model.ChatStatusTitled, h.st.chats[stranded.ID].Status)
}

func TestResumeChat_FromSummarizedUsesStoredSummary(t *testing.T) {
	h := newHarness(t)
	chat := &model.Chat{UserID: owner, ImageURL: "k", ExtractedText: "t", Status: model.ChatStatusSummarized}
	require.NoError(t, h.chats.Create(context.Background(), chat))
	require.NoError(t, h.its.Create(context.Background(), &model.Interaction{ChatID: chat.ID, Answer: "isto é um resumo muito longo"}))
	h.llm.replies = []reply{{err: errors.New("timeout")}}

	resumed, err := h.svc.ResumeChat(context.Background(), owner, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "isto é um resumo", resumed.Title)
	assert.Len(t, h.llm.prompts, 1)
}

func TestResumeChat_TitledIsNoop(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)

	resumed, err := h.svc.ResumeChat(context.Background(), owner, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Título", resumed.Title)
	assert.Empty(t, h.llm.prompts)
}

func TestSendMessage(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)
	h.llm.replies = []reply{{text: "O total é R$ 45,90."}}

	resp, err := h.svc.SendMessage(context.Background(), owner, chat.ID, "Qual o total?")
	require.NoError(t, err)
	assert.Equal(t, chat.ID, resp.ChatID)
	assert.Equal(t, "Qual o total?", resp.Question)
	assert.Equal(t, "O total é R$ 45,90.", resp.Answer)
	assert.NotEmpty(t, resp.ID)

	assert.Equal(t,
		"Você é um assistente que responde com base no texto extraído.\nTexto extraído: texto\nPergunta: Qual o total?",
		h.llm.prompts[0])
	assert.Len(t, h.st.list(chat.ID), 2)
}

func TestSendMessage_CompletionFailurePersistsNothing(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)
	h.llm.replies = []reply{{err: errors.New("boom")}}

	_, err := h.svc.SendMessage(context.Background(), owner, chat.ID, "Qual o total?")
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.Len(t, h.st.list(chat.ID), 1)
}

func TestSendMessage_BlankMessage(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)
	calls := h.st.calls

	_, err := h.svc.SendMessage(context.Background(), owner, chat.ID, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, calls, h.st.calls)
}

func TestStreamMessage(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)
	h.llm.replies = []reply{{text: "resposta em partes"}}

	var chunks []string
	resp, err := h.svc.StreamMessage(context.Background(), owner, chat.ID, "Pergunta?",
		llm.ChunkWriterFunc(func(c string) error {
			chunks = append(chunks, c)
			return nil
		}))
	require.NoError(t, err)
	assert.Equal(t, "resposta em partes", strings.Join(chunks, ""))
	assert.Equal(t, "resposta em partes", resp.Answer)
	assert.Len(t, h.st.list(chat.ID), 2)
}

func TestStreamMessage_ClientGoneStillSavesAnswer(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)
	h.llm.replies = []reply{{text: "resposta completa"}}
	before := len(h.st.list(chat.ID))

	resp, err := h.svc.StreamMessage(context.Background(), owner, chat.ID, "Pergunta?",
		llm.ChunkWriterFunc(func(string) error { return errors.New("websocket: close sent") }))
	require.NoError(t, err)
	assert.Equal(t, "resposta completa", resp.Answer)

	its := h.st.list(chat.ID)
	require.Len(t, its, before+1)
	assert.Equal(t, "Pergunta?", its[len(its)-1].Question)
	assert.Equal(t, "resposta completa", its[len(its)-1].Answer)
}

func TestStreamMessage_CompletionFailurePersistsNothing(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)
	h.llm.replies = []reply{{err: errors.New("upstream 500")}}

	_, err := h.svc.StreamMessage(context.Background(), owner, chat.ID, "Pergunta?",
		llm.ChunkWriterFunc(func(string) error { return nil }))
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.Len(t, h.st.list(chat.ID), 1)
}

func TestOwnershipHidesExistence(t *testing.T) {
	ctx := context.Background()
	ops := map[string]func(svc ChatService, chatID string) error{
		"GetChat": func(svc ChatService, id string) error {
			_, err := svc.GetChat(ctx, stranger, id)
			return err
		},
		"SendMessage": func(svc ChatService, id string) error {
			_, err := svc.SendMessage(ctx, stranger, id, "oi?")
			return err
		},
		"StreamMessage": func(svc ChatService, id string) error {
			_, err := svc.StreamMessage(ctx, stranger, id, "oi?", llm.ChunkWriterFunc(func(string) error { return nil }))
			return err
		},
		"UpdateTitle": func(svc ChatService, id string) error {
			_, err := svc.UpdateTitle(ctx, stranger, id, "novo")
			return err
		},
		"DeleteChat": func(svc ChatService, id string) error {
			_, err := svc.DeleteChat(ctx, stranger, id)
			return err
		},
		"ResumeChat": func(svc ChatService, id string) error {
			_, err := svc.ResumeChat(ctx, stranger, id)
			return err
		},
		"ImageURL": func(svc ChatService, id string) error {
			_, err := svc.ImageURL(ctx, stranger, id)
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			chat := h.seedChat(t, owner)

			foreignErr := op(h.svc, chat.ID)
			missingErr := op(h.svc, "00000000-0000-0000-0000-000000000000")

			assert.ErrorIs(t, foreignErr, ErrChatNotFound)
			assert.ErrorIs(t, missingErr, ErrChatNotFound)
			assert.Equal(t, missingErr.Error(), foreignErr.Error())
			assert.Empty(t, h.llm.prompts)
			assert.Contains(t, h.st.chats, chat.ID)
		})
	}
}

func TestEmptyChatIDRejectedBeforeAnyCall(t *testing.T) {
	ctx := context.Background()
	ops := map[string]func(svc ChatService) error{
		"SendMessage": func(svc ChatService) error {
			_, err := svc.SendMessage(ctx, owner, "", "oi?")
			return err
		},
		"GetChat": func(svc ChatService) error {
			_, err := svc.GetChat(ctx, owner, "")
			return err
		},
		"UpdateTitle": func(svc ChatService) error {
			_, err := svc.UpdateTitle(ctx, owner, "", "t")
			return err
		},
		"DeleteChat": func(svc ChatService) error {
			_, err := svc.DeleteChat(ctx, owner, "")
			return err
		},
		"ResumeChat": func(svc ChatService) error {
			_, err := svc.ResumeChat(ctx, owner, " ")
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			err := op(h.svc)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Zero(t, h.st.calls)
			assert.Empty(t, h.llm.prompts)
			assert.Zero(t, h.images.calls)
			assert.Zero(t, h.ext.calls)
		})
	}
}

func TestListChats_NewestFirstAndIdempotent(t *testing.T) {
	h := newHarness(t)
	first := h.seedChat(t, owner)
	second := h.seedChat(t, owner)
	h.seedChat(t, stranger)

	a, err := h.svc.ListChats(context.Background(), owner)
	require.NoError(t, err)
	b, err := h.svc.ListChats(context.Background(), owner)
	require.NoError(t, err)

	require.Len(t, a, 2)
	assert.Equal(t, second.ID, a[0].ID)
	assert.Equal(t, first.ID, a[1].ID)
	assert.Equal(t, a, b)
}

func TestGetChat_InteractionsOldestFirst(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)
	require.NoError(t, h.its.Create(context.Background(), &model.Interaction{ChatID: chat.ID, Question: "A?", Answer: "B"}))

	detail, err := h.svc.GetChat(context.Background(), owner, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "texto", detail.ExtractedText)
	require.Len(t, detail.Interactions, 2)
	assert.Equal(t, "", detail.Interactions[0].Question)
	assert.Equal(t, "A?", detail.Interactions[1].Question)
}

func TestUpdateTitle(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)

	_, err := h.svc.UpdateTitle(context.Background(), owner, chat.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	conf, err := h.svc.UpdateTitle(context.Background(), owner, chat.ID, " Recibo de luz ")
	require.NoError(t, err)
	assert.Equal(t, "Título atualizado com sucesso", conf.Message)
	assert.Equal(t, "Recibo de luz", h.st.chats[chat.ID].Title)
	assert.Equal(t, model.ChatStatusTitled, h.st.chats[chat.ID].Status)
	assert.Equal(t, tasks.ActionIndex, h.pub.tasks[len(h.pub.tasks)-1].Action)
}

func TestDeleteChat_RemovesInteractions(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)
	require.NoError(t, h.its.Create(context.Background(), &model.Interaction{ChatID: chat.ID, Question: "A?", Answer: "B"}))
	interactions := NewInteractionService(h.chats, h.its)

	conf, err := h.svc.DeleteChat(context.Background(), owner, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chat removido com sucesso", conf.Message)

	assert.Empty(t, h.st.interactions)
	assert.Equal(t, []string{"chats/x.png"}, h.images.removed)
	assert.Equal(t, tasks.ChatIndexTask{ChatID: chat.ID, UserID: owner, Action: tasks.ActionDelete}, h.pub.tasks[len(h.pub.tasks)-1])

	_, err = interactions.ListMessages(context.Background(), owner, chat.ID)
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	h := newHarness(t)
	h.pub.err = errors.New("kafka down")
	chat := h.seedChat(t, owner)

	_, err := h.svc.UpdateTitle(context.Background(), owner, chat.ID, "novo")
	assert.NoError(t, err)
}

func TestImageURL(t *testing.T) {
	h := newHarness(t)
	chat := h.seedChat(t, owner)

	u, err := h.svc.ImageURL(context.Background(), owner, chat.ID)
	require.NoError(t, err)
	assert.Contains(t, u, "chats/x.png")
}
