package service

import (
	"context"
	"fmt"
	"strings"
	"textlens-go/internal/model"
	"textlens-go/pkg/embedding"
	"textlens-go/pkg/log"
	"time"
)

const (
	defaultSearchTopK = 10
	maxSearchTopK     = 50
)

// ChatSearcher 是搜索索引的读取端，由 es.ChatIndex 实现。
type ChatSearcher interface {
	Search(ctx context.Context, userID uint, query string, queryVector []float32, topK int) ([]model.ChatSearchHit, error)
}

// ChatSearchResult 是一条搜索结果。
type ChatSearchResult struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ImageURL  string    `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
	Score     float64   `json:"score"`
}

// SearchService 接口定义了搜索操作。
type SearchService interface {
	SearchChats(ctx context.Context, userID uint, query string, topK int) ([]ChatSearchResult, error)
}

type searchService struct {
	searcher        ChatSearcher
	embeddingClient embedding.Client // 可为 nil，此时只做全文检索
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(searcher ChatSearcher, embeddingClient embedding.Client) SearchService {
	return &searchService{searcher: searcher, embeddingClient: embeddingClient}
}

// SearchChats 只在当前用户自己的对话中检索。向量化失败时退回全文检索。
func (s *searchService) SearchChats(ctx context.Context, userID uint, query string, topK int) ([]ChatSearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: consulta obrigatória", ErrInvalidInput)
	}
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	if topK > maxSearchTopK {
		topK = maxSearchTopK
	}

	var vector []float32
	if s.embeddingClient != nil {
		v, err := s.embeddingClient.CreateEmbedding(ctx, query)
		if err != nil {
			log.Warnf("[SearchService] 向量化查询失败，仅使用全文检索: %v", err)
		} else {
			vector = v
		}
	}

	hits, err := s.searcher.Search(ctx, userID, query, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("搜索失败: %w", err)
	}

	results := make([]ChatSearchResult, 0, len(hits))
	for _, h := range hits {
		// 索引查询已按用户过滤，这里再校验一次
		if h.Document.UserID != userID {
			continue
		}
		results = append(results, ChatSearchResult{
			ID:        h.Document.ChatID,
			Title:     h.Document.Title,
			ImageURL:  h.Document.ImageURL,
			CreatedAt: h.Document.CreatedAt,
			Score:     h.Score,
		})
	}
	log.Infof("[SearchService] 搜索完成, userID: %d, query: '%s', 命中: %d", userID, query, len(results))
	return results, nil
}
