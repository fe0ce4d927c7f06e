package storage

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"videoInsight/config"
)

// Embedder 把文本转换为定长向量
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// NewEmbedder 配置了 embedding_api_key 时使用 API，否则使用本地哈希向量
func NewEmbedder(cfg *config.Config) Embedder {
	if cfg.HasEmbeddingAPI() {
		api := NewOpenAIEmbedder(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDim)
		return NewCachedEmbedder(api, 1024, time.Hour)
	}
	return NewHashEmbedder(cfg.EmbeddingDim)
}

// ---------------- OpenAI-compatible embeddings ----------------

// OpenAIEmbedder 调用兼容 OpenAI 的 embeddings 接口
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

func NewOpenAIEmbedder(apiKey, baseURL, model string, dim int) *OpenAIEmbedder {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		dim:    dim,
	}
}

func (e *OpenAIEmbedder) Dimension() int { return e.dim }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	}
	// text-embedding-3 系列支持服务端降维
	if strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dim
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	vec := resp.Data[0].Embedding
	if len(vec) < e.dim {
		return nil, fmt.Errorf("embedding has %d dimensions, store expects %d", len(vec), e.dim)
	}
	if len(vec) > e.dim {
		vec = slicedNormL2(vec, e.dim)
	}
	return vec, nil
}

// slicedNormL2 截取前 dim 维并做 L2 归一化
func slicedNormL2(vec []float32, dim int) []float32 {
	if dim > len(vec) {
		dim = len(vec)
	}
	sliced := make([]float32, dim)
	copy(sliced, vec[:dim])

	var norm float64
	for _, v := range sliced {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range sliced {
			sliced[i] = float32(float64(sliced[i]) / norm)
		}
	}
	return sliced
}

// ---------------- Local hashing embedder ----------------

// HashEmbedder 本地特征哈希向量，无需网络
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 512
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Dimension() int { return e.dim }

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		addFeature(vec, tok, 1)
		// 相邻词对提供少量词序信息
		if i > 0 {
			addFeature(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return slicedNormL2(vec, e.dim), nil
}

func addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(len(vec)))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}
