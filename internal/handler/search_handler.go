package handler

import (
	"net/http"
	"strconv"
	"textlens-go/internal/service"
	"textlens-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// SearchChats 在当前用户的对话中做全文（以及可选的向量）检索。
func (h *SearchHandler) SearchChats(c *gin.Context) {
	query := c.Query("query")
	topK, err := strconv.Atoi(c.DefaultQuery("topK", "10"))
	if err != nil {
		topK = 0
	}
	log.Infof("[SearchHandler] 收到搜索请求, query: %s, topK: %d", query, topK)

	results, err := h.searchService.SearchChats(c.Request.Context(), currentUserID(c), query, topK)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// SearchUnavailable 在未配置 Elasticsearch 时占用同一路由。
func SearchUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "Busca indisponível"})
}
