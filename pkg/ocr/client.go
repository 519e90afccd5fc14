// Package ocr 提供了调用 OCR.Space 图片文字识别接口的客户端。
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"textlens-go/internal/config"
	"time"
)

var (
	// ErrMissingAPIKey 表示未配置 ocr.api_key。
	ErrMissingAPIKey = errors.New("ocr: api key not configured")
	// ErrNoTextRecognized 表示接口调用成功但没有识别出文字。
	ErrNoTextRecognized = errors.New("ocr: no text recognized")
)

// Client 是 OCR.Space 的客户端。
type Client struct {
	cfg    config.OCRConfig
	client *http.Client
}

// NewClient 创建一个新的 OCR 客户端实例。
func NewClient(cfg config.OCRConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if cfg.Language == "" {
		cfg.Language = "por"
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

type parseResponse struct {
	ParsedResults []struct {
		ParsedText        *string `json:"ParsedText"`
		FileParseExitCode int     `json:"FileParseExitCode"`
	} `json:"ParsedResults"`
	OCRExitCode           int             `json:"OCRExitCode"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// ExtractText 以 multipart 表单上传图片并返回第一页的识别文本。
func (c *Client) ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("apikey", c.cfg.APIKey)
	_ = writer.WriteField("language", c.cfg.Language)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("创建表单失败: %w", err)
	}
	if _, err := io.Copy(part, fileReader); err != nil {
		return "", fmt.Errorf("读取图片失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("创建表单失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 OCR 服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("OCR 服务返回错误 [%d]: %s", resp.StatusCode, string(b))
	}

	var parsed parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("解析 OCR 响应失败: %w", err)
	}
	if parsed.IsErroredOnProcessing {
		return "", fmt.Errorf("OCR 处理失败: %s", errorMessage(parsed.ErrorMessage))
	}
	if len(parsed.ParsedResults) == 0 || parsed.ParsedResults[0].ParsedText == nil {
		return "", ErrNoTextRecognized
	}
	text := *parsed.ParsedResults[0].ParsedText
	if strings.TrimSpace(text) == "" {
		return "", ErrNoTextRecognized
	}
	return text, nil
}

// errorMessage 兼容 ErrorMessage 为字符串或字符串数组两种形式。
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown error"
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
