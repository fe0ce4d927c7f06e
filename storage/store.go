package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"videoInsight/config"
	"videoInsight/core"
	"videoInsight/logger"
)

// DocumentStore 分析文本的语义存储
type DocumentStore interface {
	// Add 以 id 为键写入文档，已存在则覆盖
	Add(ctx context.Context, document string, meta Metadata, id string) error
	// Query 返回与 text 最相似的文档，按相似度降序
	Query(ctx context.Context, text string, topK int, opts ...QueryOption) ([]string, error)
	Close() error
}

// Metadata 文档元数据
type Metadata struct {
	VideoID string           `json:"video_id"`
	Section core.SectionKind `json:"section"`
}

// QueryOption 查询过滤条件
type QueryOption func(*QueryFilter)

// QueryFilter 解析后的过滤条件，空字段表示不限制
type QueryFilter struct {
	VideoID string
	Section core.SectionKind
}

// WithVideoID 只检索指定视频的文档
func WithVideoID(videoID string) QueryOption {
	return func(f *QueryFilter) { f.VideoID = videoID }
}

// WithSection 只检索指定类型的文档
func WithSection(section core.SectionKind) QueryOption {
	return func(f *QueryFilter) { f.Section = section }
}

// ResolveQueryOptions 依次应用 opts，供各后端实现 Query 时使用
func ResolveQueryOptions(opts []QueryOption) QueryFilter {
	var f QueryFilter
	for _, opt := range opts {
		if opt != nil {
			opt(&f)
		}
	}
	return f
}

// Matches 元数据是否满足过滤条件
func (f QueryFilter) Matches(meta Metadata) bool {
	if f.VideoID != "" && meta.VideoID != f.VideoID {
		return false
	}
	if f.Section != "" && meta.Section != f.Section {
		return false
	}
	return true
}

// normalizeDocuments 把后端返回的按查询分组的结果压平成一个有序列表
func normalizeDocuments(topK int, batches ...[]string) []string {
	out := make([]string, 0, topK)
	for _, batch := range batches {
		for _, doc := range batch {
			if len(out) >= topK {
				return out
			}
			out = append(out, doc)
		}
	}
	return out
}

// ---------------- Factory ----------------

// NewDocumentStore 根据配置创建文档存储，外部后端不可用时降级为内存存储
func NewDocumentStore(ctx context.Context, cfg *config.Config, embedder Embedder, log *logger.Logger) (DocumentStore, string) {
	log = log.With("service", "DocumentStore")
	kind := strings.ToLower(strings.TrimSpace(cfg.Store))

	switch kind {
	case "sqlite":
		s, err := NewSQLiteStore(ctx, cfg.SQLitePath, cfg.Collection, embedder)
		if err == nil {
			log.Info("document store ready", "backend", "sqlite", "path", cfg.SQLitePath)
			return s, "sqlite"
		}
		log.Warn("sqlite store unavailable, falling back to memory store", "error", err)
	case "pgvector":
		s, err := NewPgVectorStore(ctx, cfg.PostgresURL, cfg.Collection, embedder)
		if err == nil {
			log.Info("document store ready", "backend", "pgvector")
			return s, "pgvector"
		}
		log.Warn("pgvector store unavailable, falling back to memory store", "error", err)
	case "milvus":
		s, err := NewMilvusStore(ctx, MilvusOptions{
			Address:    cfg.MilvusAddr,
			Username:   cfg.MilvusUsername,
			Password:   cfg.MilvusPassword,
			APIKey:     cfg.MilvusAPIKey,
			Collection: cfg.Collection,
			Logger:     log,
		}, embedder)
		if err == nil {
			log.Info("document store ready", "backend", "milvus", "addr", cfg.MilvusAddr)
			return s, "milvus"
		}
		log.Warn("milvus store unavailable, falling back to memory store", "error", err)
	case "", "memory":
	default:
		log.Warn("unknown store kind, using memory store", "store", kind)
	}

	return NewMemoryStore(), "memory"
}

// ---------------- Vector helpers ----------------

type scoredDoc struct {
	order int
	score float64
	text  string
}

// rankDocuments 按分数降序排序，分数相同时保持写入顺序
func rankDocuments(docs []scoredDoc, topK int) []string {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].score != docs[j].score {
			return docs[i].score > docs[j].score
		}
		return docs[i].order < docs[j].order
	})
	if topK > len(docs) {
		topK = len(docs)
	}
	out := make([]string, 0, topK)
	for _, d := range docs[:topK] {
		out = append(out, d.text)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("document id required")
	}
	return nil
}
