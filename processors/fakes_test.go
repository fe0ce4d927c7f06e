package processors

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"videoInsight/annotator"
	"videoInsight/core"
	"videoInsight/storage"
)

type fakeQuery struct {
	text   string
	topK   int
	filter storage.QueryFilter
}

type fakeDoc struct {
	id   string
	text string
	meta storage.Metadata
}

// fakeStore 按写入顺序返回满足过滤条件的文档，并记录所有调用
type fakeStore struct {
	mu       sync.Mutex
	docs     []fakeDoc
	queryErr error
	addErr   error
	queries  []fakeQuery
	added    map[string]string
	addOrder []string
}

// newFakeStore 预置 videoID 的 LABEL_DETECTION 段落
func newFakeStore(videoID string, docs ...string) *fakeStore {
	s := &fakeStore{added: make(map[string]string)}
	for i, d := range docs {
		s.docs = append(s.docs, fakeDoc{
			id:   fmt.Sprintf("seed_%d", i),
			text: d,
			meta: storage.Metadata{VideoID: videoID, Section: core.LabelDetection},
		})
	}
	return s
}

func (s *fakeStore) Add(ctx context.Context, document string, meta storage.Metadata, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	s.added[id] = document
	s.addOrder = append(s.addOrder, id)
	for i := range s.docs {
		if s.docs[i].id == id {
			s.docs[i] = fakeDoc{id: id, text: document, meta: meta}
			return nil
		}
	}
	s.docs = append(s.docs, fakeDoc{id: id, text: document, meta: meta})
	return nil
}

func (s *fakeStore) Query(ctx context.Context, text string, topK int, opts ...storage.QueryOption) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filter := storage.ResolveQueryOptions(opts)
	s.queries = append(s.queries, fakeQuery{text: text, topK: topK, filter: filter})
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []string
	for _, d := range s.docs {
		if len(out) >= topK {
			break
		}
		if filter.Matches(d.meta) {
			out = append(out, d.text)
		}
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

// fakeChat 按顺序返回 replies，记录每次请求
type fakeChat struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests [][]core.ChatMessage
	options  []CompletionOptions
}

func (c *fakeChat) Complete(ctx context.Context, messages []core.ChatMessage, opts CompletionOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, append([]core.ChatMessage(nil), messages...))
	c.options = append(c.options, opts)
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "ok", nil
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func (c *fakeChat) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *fakeChat) lastRequest() []core.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return nil
	}
	return c.requests[len(c.requests)-1]
}

type fakeAnnotator struct {
	result *core.AnnotationResult
	err    error
	calls  int
}

func (a *fakeAnnotator) Annotate(ctx context.Context, src annotator.VideoSource) (*core.AnnotationResult, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

var errModelDown = errors.New("model unavailable")
