package processors

import (
	"context"
	"fmt"
	"sync"

	"videoInsight/core"
	"videoInsight/logger"
	"videoInsight/storage"
)

// Registry 按 video_id 管理对话会话
type Registry struct {
	mu       sync.Mutex
	handlers map[string]*ConversationHandler

	store     storage.DocumentStore
	model     ChatModel
	opts      ConversationOptions
	snapshots storage.SessionStore // 可选
	log       *logger.Logger
}

func NewRegistry(store storage.DocumentStore, model ChatModel, opts ConversationOptions, snapshots storage.SessionStore, log *logger.Logger) *Registry {
	return &Registry{
		handlers:  make(map[string]*ConversationHandler),
		store:     store,
		model:     model,
		opts:      opts,
		snapshots: snapshots,
		log:       log.With("service", "Registry"),
	}
}

// Start 为视频开始新会话，已有会话会被重置
func (r *Registry) Start(ctx context.Context, videoID, seedText string) {
	h := r.handler(videoID)
	h.Start(ctx, videoID, seedText)
	r.persist(ctx, h)
}

// Respond 向视频会话发送一轮输入
// 会话不存在时先尝试从快照恢复，再用已存储的摘要自动开始；都没有则返回 core.ErrAnalysisNotFound
func (r *Registry) Respond(ctx context.Context, videoID, userText string) (string, error) {
	h, err := r.lookup(ctx, videoID)
	if err != nil {
		return "", err
	}
	reply, err := h.Respond(ctx, userText)
	if err != nil {
		return "", err
	}
	r.persist(ctx, h)
	return reply, nil
}

// History 返回会话历史；会话不存在返回 core.ErrConversationNotStarted
func (r *Registry) History(ctx context.Context, videoID string) ([]core.ConversationTurn, error) {
	r.mu.Lock()
	h, ok := r.handlers[videoID]
	r.mu.Unlock()
	if ok {
		return h.History(), nil
	}

	snap := r.loadSnapshot(ctx, videoID)
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrConversationNotStarted, videoID)
	}
	return snap.Turns, nil
}

// Reset 丢弃会话及其快照
func (r *Registry) Reset(ctx context.Context, videoID string) error {
	r.mu.Lock()
	delete(r.handlers, videoID)
	r.mu.Unlock()

	if r.snapshots != nil {
		if err := r.snapshots.Delete(ctx, videoID); err != nil {
			return fmt.Errorf("delete session %s: %w", videoID, err)
		}
	}
	r.log.Info("conversation reset", "video_id", videoID)
	return nil
}

// Len 当前内存中的会话数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

func (r *Registry) handler(videoID string) *ConversationHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[videoID]
	if !ok {
		h = NewConversationHandler(r.store, r.model, r.opts, r.log)
		r.handlers[videoID] = h
	}
	return h
}

func (r *Registry) lookup(ctx context.Context, videoID string) (*ConversationHandler, error) {
	r.mu.Lock()
	h, ok := r.handlers[videoID]
	r.mu.Unlock()
	if ok && h.Active() {
		return h, nil
	}

	if snap := r.loadSnapshot(ctx, videoID); snap != nil {
		h = r.handler(videoID)
		h.Restore(*snap)
		r.log.Info("conversation restored", "video_id", videoID, "turns", len(snap.Turns))
		return h, nil
	}

	summary, found := FindSummary(ctx, r.store, videoID, r.log)
	if !found {
		return nil, fmt.Errorf("%w: %s", core.ErrAnalysisNotFound, videoID)
	}
	h = r.handler(videoID)
	if !h.Active() {
		h.Start(ctx, videoID, summary)
	}
	return h, nil
}

func (r *Registry) loadSnapshot(ctx context.Context, videoID string) *core.SessionSnapshot {
	if r.snapshots == nil {
		return nil
	}
	snap, err := r.snapshots.Load(ctx, videoID)
	if err != nil {
		r.log.Warn("failed to load session snapshot", "video_id", videoID, "error", err)
		return nil
	}
	return snap
}

func (r *Registry) persist(ctx context.Context, h *ConversationHandler) {
	if r.snapshots == nil {
		return
	}
	snap, ok := h.Snapshot()
	if !ok {
		return
	}
	if err := r.snapshots.Save(ctx, snap); err != nil {
		r.log.Warn("failed to save session snapshot", "video_id", snap.VideoID, "error", err)
	}
}
