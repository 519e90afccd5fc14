package handler

import (
	"net/http"
	"textlens-go/internal/service"

	"github.com/gin-gonic/gin"
)

// CompletionHandler 直接转发一段提示词给模型。
type CompletionHandler struct {
	completionService service.CompletionService
}

func NewCompletionHandler(completionService service.CompletionService) *CompletionHandler {
	return &CompletionHandler{completionService: completionService}
}

// CompleteRequest 是 /hf/complete 的请求体。
type CompleteRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

func (h *CompletionHandler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	text, err := h.completionService.Complete(c.Request.Context(), req.Prompt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}
