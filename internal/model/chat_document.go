package model

import "time"

// ChatDocument 是写入 Elasticsearch 的对话索引文档。
type ChatDocument struct {
	ChatID        string    `json:"chat_id"`
	UserID        uint      `json:"user_id"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary"`
	ExtractedText string    `json:"extracted_text"`
	ImageURL      string    `json:"image_url"`
	CreatedAt     time.Time `json:"created_at"`
	Vector        []float32 `json:"vector,omitempty"`
	ModelVersion  string    `json:"model_version,omitempty"`
}

// ChatSearchHit 是一条带相关度分数的搜索命中。
type ChatSearchHit struct {
	Document ChatDocument
	Score    float64
}
