package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"textlens-go/internal/model"
	"textlens-go/internal/repository"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	pdfMargin   = 18.0 // mm
	pdfFontSize = 12.0
	pdfLineH    = 6.0
)

// ExportService 将对话导出为 PDF。
type ExportService interface {
	ExportPDF(ctx context.Context, userID uint, chatID string) ([]byte, error)
}

type exportService struct {
	chatRepo repository.ChatRepository
	now      func() time.Time
}

// NewExportService 创建一个新的 ExportService 实例。
func NewExportService(chatRepo repository.ChatRepository) ExportService {
	return &exportService{chatRepo: chatRepo, now: time.Now}
}

// ExportPDF 第一部分为识别文本，第二部分另起一页列出全部问答。
func (s *exportService) ExportPDF(ctx context.Context, userID uint, chatID string) ([]byte, error) {
	if err := requireChatID(chatID); err != nil {
		return nil, err
	}
	chat, err := loadOwnedChat(ctx, s.chatRepo.FindByIDWithInteractions, userID, chatID)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(chat.Title, true)
	// 内置字体使用 cp1252，需要转换葡萄牙语字符
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	heading := func(text string) {
		pdf.SetFont("Helvetica", "B", pdfFontSize+2)
		pdf.MultiCell(0, pdfLineH+2, tr(text), "", "L", false)
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "", pdfFontSize)
	}
	paragraph := func(text string) {
		pdf.MultiCell(0, pdfLineH, tr(text), "", "L", false)
	}

	pdf.AddPage()
	if chat.Title != "" {
		heading(chat.Title)
	}
	pdf.SetFont("Helvetica", "I", pdfFontSize-2)
	paragraph("Gerado em " + model.LocalTime(s.now()).String())
	pdf.Ln(4)

	heading("Texto Extraído:")
	for _, block := range strings.Split(chat.ExtractedText, "\n") {
		paragraph(block)
		pdf.Ln(2)
	}

	pdf.AddPage()
	heading("Interações (Perguntas e Respostas):")
	for _, it := range chat.Interactions {
		pdf.SetFont("Helvetica", "I", pdfFontSize-2)
		paragraph(model.LocalTime(it.CreatedAt).String())
		pdf.SetFont("Helvetica", "", pdfFontSize)
		paragraph("Pergunta: " + it.Question)
		pdf.Ln(2)
		paragraph("Resposta: " + it.Answer)
		pdf.Ln(pdfLineH)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("生成 PDF 失败: %w", err)
	}
	return buf.Bytes(), nil
}
