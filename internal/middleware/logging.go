// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"textlens-go/pkg/log"
	"time"

	"github.com/gin-gonic/gin"
)

// 日志中单个 body 的最大记录长度
const maxLoggedBody = 2048

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// 图片上传、PDF 下载与 WebSocket 的内容不会被记录。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody []byte
		if c.Request.Body != nil && capturable(c.ContentType()) {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 将读取的请求体重新设置回去，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		websocketUpgrade := strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		if !websocketUpgrade {
			c.Writer = blw
		}

		c.Next()

		responseBody := ""
		if capturable(c.Writer.Header().Get("Content-Type")) {
			responseBody = truncate(redact(blw.body.String()))
		}

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", truncate(redact(string(requestBody))),
			"responseBody", responseBody,
		)
	}
}

// capturable 只记录 JSON 与纯文本内容。
func capturable(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json") || strings.HasPrefix(contentType, "text/")
}

// 含有这些字段的 body 整体不记录
var sensitiveFields = []string{`"password"`, `"access_token"`}

// redact 隐藏包含密码或 token 的请求体与响应体。
func redact(body string) string {
	for _, f := range sensitiveFields {
		if strings.Contains(body, f) {
			return "[REDACTED]"
		}
	}
	return body
}

func truncate(s string) string {
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "..."
	}
	return s
}
