package handler

import (
	"net/http"
	"strings"
	"textlens-go/internal/middleware"
	"textlens-go/internal/service"
	"textlens-go/pkg/log"
	"textlens-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// StreamHandler 通过 WebSocket 流式回答对话中的追问。
// 客户端每发送一条文本帧视为一个问题。
type StreamHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
	revocation  token.RevocationStore
}

// NewStreamHandler 创建一个新的 StreamHandler。
func NewStreamHandler(chatService service.ChatService, jwtManager *token.JWTManager, revocation token.RevocationStore) *StreamHandler {
	return &StreamHandler{chatService: chatService, jwtManager: jwtManager, revocation: revocation}
}

// wsChunkWriter 把模型输出的增量写成 {"type":"chunk","chunk":"..."} 帧。
type wsChunkWriter struct {
	conn *websocket.Conn
}

func (w wsChunkWriter) WriteChunk(chunk string) error {
	return w.conn.WriteJSON(gin.H{"type": "chunk", "chunk": chunk})
}

// Handle 处理 /ws/chats/:chatId?token=... 连接。
// 浏览器无法为 WebSocket 设置请求头，因此 token 通过查询参数传递。
func (h *StreamHandler) Handle(c *gin.Context) {
	claims, err := middleware.Authenticate(c, h.jwtManager, h.revocation, c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "Token inválido ou expirado"})
		return
	}
	chatID := c.Param("chatId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("[StreamHandler] WebSocket 连接已建立, userID: %d, chatID: %s", claims.UserID, chatID)

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("[StreamHandler] 读取 WebSocket 消息失败: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage || strings.TrimSpace(string(message)) == "" {
			continue
		}

		resp, err := h.chatService.StreamMessage(c.Request.Context(), claims.UserID, chatID, string(message), wsChunkWriter{conn: conn})
		if err != nil {
			status, msg := classify(err)
			if status >= http.StatusInternalServerError {
				log.Errorf("[StreamHandler] 流式回答失败, chatID: %s, error: %v", chatID, err)
			}
			if werr := conn.WriteJSON(gin.H{"type": "error", "code": status, "message": msg}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(gin.H{"type": "completion", "interaction": resp}); err != nil {
			log.Warnf("[StreamHandler] 发送完成通知失败: %v", err)
			return
		}
	}
}
