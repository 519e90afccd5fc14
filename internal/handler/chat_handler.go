package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"textlens-go/internal/service"
	"textlens-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// multipart 头部等额外开销
const multipartOverhead = 1 << 20

// ChatHandler 负责对话相关的 REST 接口。
type ChatHandler struct {
	chatService        service.ChatService
	interactionService service.InteractionService
	exportService      service.ExportService
	maxImageBytes      int64
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, interactionService service.InteractionService, exportService service.ExportService, maxImageBytes int64) *ChatHandler {
	return &ChatHandler{
		chatService:        chatService,
		interactionService: interactionService,
		exportService:      exportService,
		maxImageBytes:      maxImageBytes,
	}
}

// CreateChat 接收 multipart 字段 image，完成识别、摘要与标题后返回对话。
func (h *ChatHandler) CreateChat(c *gin.Context) {
	userID := currentUserID(c)
	if h.maxImageBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes+multipartOverhead)
	}

	upload, err := h.readImage(c)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Infof("[ChatHandler] 收到图片, userID: %d, fileName: %s, size: %d", userID, upload.FileName, len(upload.Data))

	created, err := h.chatService.CreateChat(c.Request.Context(), userID, upload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (h *ChatHandler) readImage(c *gin.Context) (service.ImageUpload, error) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return service.ImageUpload{}, service.ErrImageTooLarge
		}
		return service.ImageUpload{}, fmt.Errorf("%w: campo image obrigatório", service.ErrInvalidInput)
	}
	if h.maxImageBytes > 0 && fileHeader.Size > h.maxImageBytes {
		return service.ImageUpload{}, service.ErrImageTooLarge
	}

	file, err := fileHeader.Open()
	if err != nil {
		return service.ImageUpload{}, fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.ImageUpload{}, fmt.Errorf("读取上传文件失败: %w", err)
	}
	return service.ImageUpload{FileName: fileHeader.Filename, Data: data}, nil
}

// ResumeChat 继续一次中断的创建流程。
func (h *ChatHandler) ResumeChat(c *gin.Context) {
	created, err := h.chatService.ResumeChat(c.Request.Context(), currentUserID(c), c.Param("chatId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chatService.ListChats(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	detail, err := h.chatService.GetChat(c.Request.Context(), currentUserID(c), c.Param("chatId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// SendMessageRequest 是追问的请求体。
type SendMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	resp, err := h.chatService.SendMessage(c.Request.Context(), currentUserID(c), c.Param("chatId"), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateTitleRequest 是修改标题的请求体。
type UpdateTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

func (h *ChatHandler) UpdateTitle(c *gin.Context) {
	var req UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	conf, err := h.chatService.UpdateTitle(c.Request.Context(), currentUserID(c), c.Param("chatId"), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conf)
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	conf, err := h.chatService.DeleteChat(c.Request.Context(), currentUserID(c), c.Param("chatId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conf)
}

// ListInteractions 返回展开后的消息流。
func (h *ChatHandler) ListInteractions(c *gin.Context) {
	msgs, err := h.interactionService.ListMessages(c.Request.Context(), currentUserID(c), c.Param("chatId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// RemoveInteraction 按问答 ID 删除，归属由问答所在的对话决定。
func (h *ChatHandler) RemoveInteraction(c *gin.Context) {
	conf, err := h.interactionService.Remove(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conf)
}

// DownloadPDF 以附件形式返回对话的 PDF。
func (h *ChatHandler) DownloadPDF(c *gin.Context) {
	chatID := c.Param("chatId")
	pdf, err := h.exportService.ExportPDF(c.Request.Context(), currentUserID(c), chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="chat-%s.pdf"`, chatID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// RedirectImage 重定向到原图的预签名地址。
func (h *ChatHandler) RedirectImage(c *gin.Context) {
	url, err := h.chatService.ImageURL(c.Request.Context(), currentUserID(c), c.Param("chatId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}
