package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorStore PostgreSQL + pgvector 文档存储
type PgVectorStore struct {
	pool     *pgxpool.Pool
	table    string
	embedder Embedder
}

func NewPgVectorStore(ctx context.Context, dbURL, collection string, embedder Embedder) (*PgVectorStore, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgVectorStore{pool: pool, table: sanitizeTableName(collection), embedder: embedder}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func (s *PgVectorStore) ensureTable(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	tableQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(255) PRIMARY KEY,
			seq BIGSERIAL,
			video_id VARCHAR(255) NOT NULL,
			section VARCHAR(64) NOT NULL,
			document TEXT NOT NULL,
			embedding vector(%d),
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`, s.ident(), s.embedder.Dimension())
	if _, err := s.pool.Exec(ctx, tableQuery); err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.table, err)
	}

	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(video_id, section);",
			pgx.Identifier{"idx_" + s.table + "_video"}.Sanitize(), s.ident()),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops);",
			pgx.Identifier{"idx_" + s.table + "_embedding"}.Sanitize(), s.ident()),
	}
	for _, q := range indexes {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (s *PgVectorStore) Add(ctx context.Context, document string, meta Metadata, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	embedding, err := s.embedder.Embed(ctx, document)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", id, err)
	}

	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, video_id, section, document, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET
			video_id = EXCLUDED.video_id,
			section = EXCLUDED.section,
			document = EXCLUDED.document,
			embedding = EXCLUDED.embedding,
			updated_at = CURRENT_TIMESTAMP
	`, s.ident()), id, meta.VideoID, string(meta.Section), document, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", id, err)
	}
	return nil
}

func (s *PgVectorStore) Query(ctx context.Context, text string, topK int, opts ...QueryOption) ([]string, error) {
	if topK <= 0 {
		return nil, nil
	}
	o := ResolveQueryOptions(opts)
	queryEmbedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	args := []any{pgvector.NewVector(queryEmbedding)}
	var where []string
	if o.VideoID != "" {
		args = append(args, o.VideoID)
		where = append(where, fmt.Sprintf("video_id = $%d", len(args)))
	}
	if o.Section != "" {
		args = append(args, string(o.Section))
		where = append(where, fmt.Sprintf("section = $%d", len(args)))
	}
	args = append(args, topK)

	query := fmt.Sprintf("SELECT document FROM %s", s.ident())
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $1, seq LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	return normalizeDocuments(topK, docs), nil
}

func (s *PgVectorStore) Close() error {
	s.pool.Close()
	return nil
}
