// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"textlens-go/internal/config"
	"time"
)

// ErrEmptyCompletion 表示接口成功返回但内容为空。
var ErrEmptyCompletion = errors.New("llm: empty completion")

// ErrChunkWrite 表示 writer 写入失败（通常是客户端断开）；此时流仍被读完，完整回答照常返回。
var ErrChunkWrite = errors.New("llm: chunk writer failed")

// ChunkWriter 接收流式输出的增量文本。
// websocket 连接由调用方适配，本包不依赖具体传输。
type ChunkWriter interface {
	WriteChunk(chunk string) error
}

// ChunkWriterFunc 允许把普通函数当作 ChunkWriter 使用。
type ChunkWriterFunc func(chunk string) error

func (f ChunkWriterFunc) WriteChunk(chunk string) error { return f(chunk) }

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 发送一条 user 消息并返回完整回答。
	Complete(ctx context.Context, prompt string) (string, error)
	// StreamChatMessages 以 role-based 消息与可选生成参数调用聊天接口，
	// 将流式分块写入 writer，并返回拼接后的完整回答。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer ChunkWriter) (string, error)
}

type openAIClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient 创建一个 OpenAI 兼容接口的客户端。
func NewClient(cfg config.LLMConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &openAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

func (c *openAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := c.newRequest([]Message{{Role: "user", Content: prompt}}, nil, false)

	resp, err := c.do(ctx, reqBody, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *openAIClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer ChunkWriter) (string, error) {
	reqBody := c.newRequest(messages, gen, true)

	resp, err := c.do(ctx, reqBody, "text/event-stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var (
		full     strings.Builder
		writeErr error
	)
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return full.String(), fmt.Errorf("failed to read from stream: %w", err)
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			if data == "[DONE]" {
				break
			}

			var chunk chatStreamResponse
			if jerr := json.Unmarshal([]byte(data), &chunk); jerr == nil && len(chunk.Choices) > 0 {
				content := chunk.Choices[0].Delta.Content
				if content != "" {
					full.WriteString(content)
					// 首次写入失败后不再推送，但继续读取直到模型结束
					if writeErr == nil {
						if werr := writer.WriteChunk(content); werr != nil {
							writeErr = fmt.Errorf("%w: %w", ErrChunkWrite, werr)
						}
					}
				}
			}
		}

		if err == io.EOF {
			break
		}
	}

	if strings.TrimSpace(full.String()) == "" {
		return "", ErrEmptyCompletion
	}
	return full.String(), writeErr
}

// newRequest 组装请求体；传入的生成参数优先，否则使用配置中的非零值。
func (c *openAIClient) newRequest(messages []Message, gen *GenerationParams, stream bool) chatRequest {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   stream,
	}
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.TopP = gen.TopP
		reqBody.MaxTokens = gen.MaxTokens
		return reqBody
	}
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		reqBody.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		reqBody.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		reqBody.MaxTokens = &m
	}
	return reqBody
}

func (c *openAIClient) do(ctx context.Context, reqBody chatRequest, accept string) (*http.Response, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("llm: api key not configured")
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", accept)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	return resp, nil
}
