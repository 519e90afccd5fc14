// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"textlens-go/internal/config"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNoTextRecognized 表示 Tika 返回了空白文本。
var ErrNoTextRecognized = errors.New("tika: no text recognized")

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL   string
	ocrLanguage string
	client      *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL:   strings.TrimRight(cfg.ServerURL, "/"),
		ocrLanguage: cfg.OCRLanguage,
		client:      http.DefaultClient,
	}
}

// ExtractText 根据内容嗅探 MIME 类型，并调用 Tika（内置 Tesseract）识别图片中的文字。
func (c *Client) ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	br := bufio.NewReader(fileReader)
	head, _ := br.Peek(3072)
	contentType := mimetype.Detect(head).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", br)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if c.ocrLanguage != "" {
		req.Header.Set("X-Tika-OCRLanguage", c.ocrLanguage)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", ErrNoTextRecognized
	}
	return text, nil
}
