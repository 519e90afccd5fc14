// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"textlens-go/internal/middleware"
	"textlens-go/internal/service"
	"textlens-go/pkg/log"
	"textlens-go/pkg/token"

	"github.com/gin-gonic/gin"
)

const internalErrorMessage = "Erro interno do servidor"

// errorStatus 将业务错误映射为 HTTP 状态码，按顺序匹配。
var errorStatus = []struct {
	err    error
	status int
}{
	{service.ErrInvalidInput, http.StatusBadRequest},
	{service.ErrUnsupportedImage, http.StatusBadRequest},
	{service.ErrImageTooLarge, http.StatusRequestEntityTooLarge},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrChatNotFound, http.StatusNotFound},
	{service.ErrInteractionNotFound, http.StatusNotFound},
	{service.ErrUserNotFound, http.StatusNotFound},
	{service.ErrEmailTaken, http.StatusConflict},
	{service.ErrNoTextRecognized, http.StatusUnprocessableEntity},
	{service.ErrExtractionFailed, http.StatusInternalServerError},
	{service.ErrCompletionFailed, http.StatusInternalServerError},
}

// respondError 统一输出 {"code","message"}。
// 客户端只会看到哨兵错误的文本，输入校验错误额外带上字段说明。
func respondError(c *gin.Context, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s 处理失败: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"code": status, "message": message})
}

func classify(err error) (int, string) {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			if m.err == service.ErrInvalidInput {
				return m.status, err.Error()
			}
			return m.status, m.err.Error()
		}
	}
	return http.StatusInternalServerError, internalErrorMessage
}

// respondBindError 处理请求体绑定与校验失败。
func respondBindError(c *gin.Context, err error) {
	log.Warnf("%s %s 请求参数无效: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": service.ErrInvalidInput.Error()})
}

// currentUserID 读取 AuthMiddleware 注入的用户 ID。
func currentUserID(c *gin.Context) uint {
	return c.MustGet(middleware.ClaimsKey).(*token.CustomClaims).UserID
}
