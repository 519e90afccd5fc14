package service

import (
	"strings"
	"textlens-go/internal/config"
)

// 默认提示词（葡萄牙语），可通过 llm.prompt.* 覆盖。
const (
	defaultAssistantLine = "Você é um assistente que responde com base no texto extraído."
	defaultSummaryLine   = "Por favor, forneça um resumo."
	defaultTitleIntro    = "Você é um assistente que cria títulos:"
	defaultTitleRule     = "gere um título curto (até 5 palavras)."
	defaultTextLabel     = "Texto extraído:"
	defaultQuestionLabel = "Pergunta:"
)

// titleFallbackWords 是标题生成失败时从摘要中截取的词数。
const titleFallbackWords = 4

// PromptBuilder 拼装发送给大模型的固定模板提示词。
type PromptBuilder struct {
	assistant     string
	summary       string
	titleIntro    string
	titleRule     string
	textLabel     string
	questionLabel string
}

// NewPromptBuilder 使用配置覆盖默认模板，留空的字段保持默认值。
func NewPromptBuilder(cfg config.LLMPromptConfig) PromptBuilder {
	return PromptBuilder{
		assistant:     orDefault(cfg.Assistant, defaultAssistantLine),
		summary:       orDefault(cfg.Summary, defaultSummaryLine),
		titleIntro:    orDefault(cfg.TitleIntro, defaultTitleIntro),
		titleRule:     orDefault(cfg.TitleRule, defaultTitleRule),
		textLabel:     orDefault(cfg.TextLabel, defaultTextLabel),
		questionLabel: orDefault(cfg.QuestionLabel, defaultQuestionLabel),
	}
}

// Summary 构建开场摘要的提示词。
func (p PromptBuilder) Summary(extractedText string) string {
	return strings.Join([]string{
		p.assistant,
		p.textLabel + " " + extractedText,
		p.summary,
	}, "\n")
}

// Title 构建标题生成的提示词。
func (p PromptBuilder) Title(extractedText string) string {
	return strings.Join([]string{
		p.titleIntro,
		p.titleRule,
		p.textLabel + " " + extractedText,
	}, "\n")
}

// Question 构建追问的提示词。
func (p PromptBuilder) Question(extractedText, question string) string {
	return strings.Join([]string{
		p.assistant,
		p.textLabel + " " + extractedText,
		p.questionLabel + " " + question,
	}, "\n")
}

// firstLine 返回去除首尾空白后的第一行。
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// fallbackTitle 取摘要的前四个空白分隔的词，以单个空格连接。
func fallbackTitle(summary string) string {
	words := strings.Fields(summary)
	if len(words) > titleFallbackWords {
		words = words[:titleFallbackWords]
	}
	return strings.Join(words, " ")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
