package storage

import (
	"context"
	"math"
	"strings"
	"sync"
)

// MemoryStore 进程内文档存储，使用词频向量余弦相似度
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]*memoryDocument
	order int
}

type memoryDocument struct {
	order int
	meta  Metadata
	text  string
	embed map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*memoryDocument)}
}

func (s *MemoryStore) Add(ctx context.Context, document string, meta Metadata, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := &memoryDocument{meta: meta, text: document, embed: embedText(document)}
	if existing, ok := s.docs[id]; ok {
		doc.order = existing.order
	} else {
		s.order++
		doc.order = s.order
	}
	s.docs[id] = doc
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, text string, topK int, opts ...QueryOption) ([]string, error) {
	if topK <= 0 {
		return nil, nil
	}
	o := ResolveQueryOptions(opts)
	qv := embedText(text)

	s.mu.RLock()
	defer s.mu.RUnlock()
	scored := make([]scoredDoc, 0, len(s.docs))
	for _, d := range s.docs {
		if !o.Matches(d.meta) {
			continue
		}
		scored = append(scored, scoredDoc{order: d.order, score: cosine(qv, d.embed), text: d.text})
	}
	return normalizeDocuments(topK, rankDocuments(scored, topK)), nil
}

// Len 返回文档数量
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *MemoryStore) Close() error { return nil }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r > 127)
	})
}

// embedText 词频向量，L2 归一化
func embedText(text string) map[string]float64 {
	m := map[string]float64{}
	for _, t := range tokenize(text) {
		m[t] += 1
	}
	var sum float64
	for _, v := range m {
		sum += v * v
	}
	if sum == 0 {
		return m
	}
	norm := math.Sqrt(sum)
	for k, v := range m {
		m[k] = v / norm
	}
	return m
}

func cosine(a, b map[string]float64) float64 {
	var dot float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	return dot
}
