package service

import (
	"context"
	"fmt"
	"strings"
	"textlens-go/pkg/llm"
)

// CompletionService 直接把一段提示词交给模型，供前端调试使用。
type CompletionService interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type completionService struct {
	llmClient llm.Client
}

// NewCompletionService 创建一个新的 CompletionService 实例。
func NewCompletionService(llmClient llm.Client) CompletionService {
	return &completionService{llmClient: llmClient}
}

func (s *completionService) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt obrigatório", ErrInvalidInput)
	}
	text, err := s.llmClient.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}
	return text, nil
}
