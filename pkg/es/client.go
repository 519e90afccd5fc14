// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"textlens-go/internal/config"
	"textlens-go/internal/model"
	"textlens-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端；vectorDims > 0 时索引包含 dense_vector 字段。
func InitES(esCfg config.ElasticsearchConfig, vectorDims int) error {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return NewChatIndex(client, esCfg.IndexName).EnsureIndex(context.Background(), vectorDims)
}

// ChatIndex 封装单个对话索引上的读写操作。
type ChatIndex struct {
	client *elasticsearch.Client
	name   string
}

// NewChatIndex 创建一个 ChatIndex。
func NewChatIndex(client *elasticsearch.Client, name string) *ChatIndex {
	return &ChatIndex{client: client, name: name}
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它
func (i *ChatIndex) EnsureIndex(ctx context.Context, vectorDims int) error {
	res, err := i.client.Indices.Exists([]string{i.name}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", i.name)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping, err := json.Marshal(indexMapping(vectorDims))
	if err != nil {
		return err
	}
	res, err = i.client.Indices.Create(
		i.name,
		i.client.Indices.Create.WithContext(ctx),
		i.client.Indices.Create.WithBody(bytes.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", i.name, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", i.name, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", i.name)
	return nil
}

// indexMapping 使用 portuguese 分析器，识别文本以葡萄牙语为主。
func indexMapping(vectorDims int) map[string]interface{} {
	props := map[string]interface{}{
		"chat_id":        map[string]interface{}{"type": "keyword"},
		"user_id":        map[string]interface{}{"type": "long"},
		"title":          map[string]interface{}{"type": "text", "analyzer": "portuguese"},
		"summary":        map[string]interface{}{"type": "text", "analyzer": "portuguese"},
		"extracted_text": map[string]interface{}{"type": "text", "analyzer": "portuguese"},
		"image_url":      map[string]interface{}{"type": "keyword", "index": false},
		"created_at":     map[string]interface{}{"type": "date"},
		"model_version":  map[string]interface{}{"type": "keyword"},
	}
	if vectorDims > 0 {
		props["vector"] = map[string]interface{}{
			"type":       "dense_vector",
			"dims":       vectorDims,
			"index":      true,
			"similarity": "cosine",
		}
	}
	return map[string]interface{}{"mappings": map[string]interface{}{"properties": props}}
}

// Index 写入或覆盖一个对话文档，文档 ID 即对话 ID。
func (i *ChatIndex) Index(ctx context.Context, doc model.ChatDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      i.name,
		DocumentID: doc.ChatID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	return nil
}

// Delete 删除一个对话文档；文档不存在视为成功。
func (i *ChatIndex) Delete(ctx context.Context, chatID string) error {
	req := esapi.DeleteRequest{Index: i.name, DocumentID: chatID, Refresh: "true"}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		log.Errorf("从 Elasticsearch 删除文档出错: %s", res.String())
		return errors.New("failed to delete document")
	}
	return nil
}

// Search 在指定用户的对话中检索。queryVector 非空时同时执行 kNN 召回。
func (i *ChatIndex) Search(ctx context.Context, userID uint, query string, queryVector []float32, topK int) ([]model.ChatSearchHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildSearchQuery(userID, query, queryVector, topK)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.name),
		i.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s %s", res.Status(), string(body))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.ChatDocument `json:"_source"`
				Score  float64            `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]model.ChatSearchHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, model.ChatSearchHit{Document: h.Source, Score: h.Score})
	}
	return hits, nil
}

func buildSearchQuery(userID uint, query string, queryVector []float32, topK int) map[string]interface{} {
	userFilter := map[string]interface{}{"term": map[string]interface{}{"user_id": userID}}
	q := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  query,
						"fields": []string{"title^3", "summary^2", "extracted_text"},
					},
				},
				"filter": userFilter,
			},
		},
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
		"size":    topK,
	}
	if len(queryVector) > 0 {
		q["knn"] = map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              topK,
			"num_candidates": topK * 10,
			"filter":         userFilter,
		}
	}
	return q
}
