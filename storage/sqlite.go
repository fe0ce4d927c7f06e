package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"

	_ "modernc.org/sqlite"
)

var tableNamePattern = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// SQLiteStore 本地持久化文档存储，向量以 BLOB 保存，查询时在进程内计算余弦相似度
type SQLiteStore struct {
	db       *sql.DB
	table    string
	embedder Embedder
}

func NewSQLiteStore(ctx context.Context, path, collection string, embedder Embedder) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 单连接避免 :memory: 数据库在多个连接间不可见
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, table: sanitizeTableName(collection), embedder: embedder}
	if err := s.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func sanitizeTableName(name string) string {
	name = tableNamePattern.ReplaceAllString(name, "_")
	if name == "" {
		return "video_analysis"
	}
	return name
}

func (s *SQLiteStore) ensureTable(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			video_id TEXT NOT NULL,
			section TEXT NOT NULL,
			document TEXT NOT NULL,
			embedding BLOB NOT NULL,
			seq INTEGER NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_video ON %[1]s(video_id, section);
	`, s.table)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.table, err)
	}
	return nil
}

func (s *SQLiteStore) Add(ctx context.Context, document string, meta Metadata, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	vec, err := s.embedder.Embed(ctx, document)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", id, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, video_id, section, document, embedding, seq)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM %[1]s))
		ON CONFLICT(id) DO UPDATE SET
			video_id = excluded.video_id,
			section = excluded.section,
			document = excluded.document,
			embedding = excluded.embedding,
			updated_at = CURRENT_TIMESTAMP
	`, s.table)
	if _, err := s.db.ExecContext(ctx, query, id, meta.VideoID, string(meta.Section), document, encodeVector(vec)); err != nil {
		return fmt.Errorf("upsert document %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, text string, topK int, opts ...QueryOption) ([]string, error) {
	if topK <= 0 {
		return nil, nil
	}
	o := ResolveQueryOptions(opts)
	qv, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	query := fmt.Sprintf(`SELECT document, embedding, seq FROM %s WHERE 1 = 1`, s.table)
	var args []any
	if o.VideoID != "" {
		query += " AND video_id = ?"
		args = append(args, o.VideoID)
	}
	if o.Section != "" {
		query += " AND section = ?"
		args = append(args, string(o.Section))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var scored []scoredDoc
	for rows.Next() {
		var doc string
		var blob []byte
		var seq int
		if err := rows.Scan(&doc, &blob, &seq); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		scored = append(scored, scoredDoc{order: seq, score: cosineSimilarity(qv, decodeVector(blob)), text: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return normalizeDocuments(topK, rankDocuments(scored, topK)), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
