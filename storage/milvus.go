package storage

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"videoInsight/logger"
)

// milvusMaxDocumentBytes document 字段的 VarChar 上限
const milvusMaxDocumentBytes = 65535

// MilvusOptions Milvus/Zilliz 连接参数
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	APIKey     string // Zilliz Cloud
	Collection string
	Logger     *logger.Logger
}

// MilvusStore Milvus 文档存储
type MilvusStore struct {
	mc       client.Client
	coll     string
	dim      int
	embedder Embedder
	log      *logger.Logger
}

func NewMilvusStore(ctx context.Context, opts MilvusOptions, embedder Embedder) (*MilvusStore, error) {
	addr := opts.Address
	if addr == "" {
		addr = "localhost:19530"
	}
	mc, err := client.NewClient(ctx, client.Config{
		Address:  addr,
		Username: opts.Username,
		Password: opts.Password,
		APIKey:   opts.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	s := &MilvusStore{
		mc:       mc,
		coll:     sanitizeTableName(opts.Collection),
		dim:      embedder.Dimension(),
		embedder: embedder,
		log:      log.With("service", "MilvusStore"),
	}
	if err := s.ensureSchemaAndIndex(ctx); err != nil {
		mc.Close()
		return nil, err
	}
	return s, nil
}

func (s *MilvusStore) ensureSchemaAndIndex(ctx context.Context) error {
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return fmt.Errorf("has collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema().WithName(s.coll).WithDescription("video analysis sections").WithAutoID(false)
		schema.WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeVarChar).WithIsPrimaryKey(true).WithMaxLength(256))
		schema.WithField(entity.NewField().WithName("video_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("section").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
		schema.WithField(entity.NewField().WithName("document").WithDataType(entity.FieldTypeVarChar).WithMaxLength(milvusMaxDocumentBytes))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

		if err := s.mc.CreateCollection(ctx, schema, int32(2), client.WithConsistencyLevel(entity.ClStrong)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
		if err != nil {
			return fmt.Errorf("new hnsw index: %w", err)
		}
		if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusStore) Add(ctx context.Context, document string, meta Metadata, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if fitted, truncated := fitDocument(document, milvusMaxDocumentBytes); truncated {
		s.log.Warn("document exceeds milvus varchar limit, truncating",
			"id", id, "bytes", len(document), "limit", milvusMaxDocumentBytes)
		document = fitted
	}
	v, err := s.embedder.Embed(ctx, document)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", id, err)
	}
	_, err = s.mc.Upsert(ctx, s.coll, "",
		entity.NewColumnVarChar("id", []string{id}),
		entity.NewColumnVarChar("video_id", []string{meta.VideoID}),
		entity.NewColumnVarChar("section", []string{string(meta.Section)}),
		entity.NewColumnVarChar("document", []string{document}),
		entity.NewColumnFloatVector("vector", s.dim, [][]float32{v}),
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", id, err)
	}
	return nil
}

func (s *MilvusStore) Query(ctx context.Context, text string, topK int, opts ...QueryOption) ([]string, error) {
	if topK <= 0 {
		return nil, nil
	}
	v, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	sp, err := entity.NewIndexHNSWSearchParam(74)
	if err != nil {
		return nil, fmt.Errorf("search param: %w", err)
	}

	res, err := s.mc.Search(ctx, s.coll, []string{}, milvusFilter(ResolveQueryOptions(opts)), []string{"document"},
		[]entity.Vector{entity.FloatVector(v)}, "vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	batches := make([][]string, 0, len(res))
	for _, r := range res {
		var docs []string
		for _, c := range r.Fields {
			col, ok := c.(*entity.ColumnVarChar)
			if !ok || col.Name() != "document" {
				continue
			}
			data := col.Data()
			for i := 0; i < r.ResultCount && i < len(data); i++ {
				docs = append(docs, data[i])
			}
		}
		batches = append(batches, docs)
	}
	return normalizeDocuments(topK, batches...), nil
}

func (s *MilvusStore) Close() error {
	return s.mc.Close()
}

func milvusFilter(o QueryFilter) string {
	var parts []string
	if o.VideoID != "" {
		parts = append(parts, fmt.Sprintf(`video_id == "%s"`, escapeExpr(o.VideoID)))
	}
	if o.Section != "" {
		parts = append(parts, fmt.Sprintf(`section == "%s"`, escapeExpr(string(o.Section))))
	}
	return strings.Join(parts, " && ")
}

func escapeExpr(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`)
}

// fitDocument 按字节上限截断，不拆分 UTF-8 字符
func fitDocument(doc string, limit int) (string, bool) {
	if len(doc) <= limit {
		return doc, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(doc[cut]) {
		cut--
	}
	return doc[:cut], true
}
