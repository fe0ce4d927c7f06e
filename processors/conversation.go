package processors

import (
	"context"
	"strings"
	"sync"
	"time"

	"videoInsight/core"
	"videoInsight/logger"
	"videoInsight/storage"
)

const relevantInfoDocs = 3

// ConversationHandler 单个视频的对话会话
// 状态：未初始化 -> Start 后进入 ACTIVE，Respond 只在 ACTIVE 下可用
type ConversationHandler struct {
	mu         sync.Mutex
	store      storage.DocumentStore
	model      ChatModel
	opts       CompletionOptions
	maxHistory int
	log        *logger.Logger

	active       bool
	videoID      string
	systemPrompt string
	turns        []core.ConversationTurn
}

// ConversationOptions 对话参数
type ConversationOptions struct {
	Model     string
	MaxTokens int
	// MaxHistory 发送给模型的最近轮数，负数表示不限制
	MaxHistory int
}

func NewConversationHandler(store storage.DocumentStore, model ChatModel, opts ConversationOptions, log *logger.Logger) *ConversationHandler {
	if opts.MaxHistory == 0 {
		opts.MaxHistory = 40
	}
	return &ConversationHandler{
		store: store,
		model: model,
		opts: CompletionOptions{
			Model:       opts.Model,
			MaxTokens:   opts.MaxTokens,
			Temperature: 0.5,
		},
		maxHistory: opts.MaxHistory,
		log:        log.With("service", "ConversationHandler"),
	}
}

// FindSummary 取出视频已存储的摘要，查询失败按未找到处理
func FindSummary(ctx context.Context, store storage.DocumentStore, videoID string, log *logger.Logger) (string, bool) {
	docs, err := store.Query(ctx, AnalysisQuery(videoID), 1,
		storage.WithVideoID(videoID), storage.WithSection(core.Summary))
	if err != nil {
		log.Warn("summary lookup failed", "video_id", videoID, "error", err)
		return "", false
	}
	if len(docs) == 0 || strings.TrimSpace(docs[0]) == "" {
		return "", false
	}
	return docs[0], true
}

// Start 开始（或重新开始）对话，清空历史
func (h *ConversationHandler) Start(ctx context.Context, videoID, fallback string) {
	grounding := fallback
	if stored, ok := FindSummary(ctx, h.store, videoID, h.log); ok {
		grounding = stored
		if stored != fallback {
			meta := storage.Metadata{VideoID: videoID, Section: core.Summary}
			if err := h.store.Add(ctx, stored, meta, core.SectionKey(videoID, core.Summary)); err != nil {
				h.log.Warn("failed to re-persist summary", "video_id", videoID, "error", err)
			}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = true
	h.videoID = videoID
	h.systemPrompt = SystemPrompt(grounding)
	h.turns = nil
	h.log.Info("conversation started", "video_id", videoID, "grounding_chars", len(grounding))
}

// Respond 处理一轮用户输入；模型失败时返回固定致歉文本且不记录助手回复
func (h *ConversationHandler) Respond(ctx context.Context, userText string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return "", core.ErrConversationNotStarted
	}

	h.turns = append(h.turns, core.ConversationTurn{Role: core.RoleUser, Content: userText})

	messages := make([]core.ChatMessage, 0, len(h.turns)+2)
	messages = append(messages,
		core.ChatMessage{Role: core.RoleSystem, Content: h.systemPrompt},
		core.ChatMessage{Role: core.RoleSystem, Content: RelevantInfoMessage(h.relevantInfo(ctx, userText))},
	)
	messages = append(messages, h.window()...)

	reply, err := h.model.Complete(ctx, messages, h.opts)
	if err != nil {
		h.log.Error("conversation turn failed", "video_id", h.videoID, "error", err)
		return ConversationErrorText, nil
	}

	h.turns = append(h.turns, core.ConversationTurn{Role: core.RoleAssistant, Content: reply})
	return reply, nil
}

func (h *ConversationHandler) relevantInfo(ctx context.Context, userText string) string {
	docs, err := h.store.Query(ctx, userText, relevantInfoDocs, storage.WithVideoID(h.videoID))
	if err != nil {
		h.log.Warn("relevant info query failed", "video_id", h.videoID, "error", err)
		return NoRelevantInfoText
	}
	var kept []string
	for _, d := range docs {
		if strings.TrimSpace(d) != "" {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		return NoRelevantInfoText
	}
	return strings.Join(kept, "\n")
}

// window 最近 maxHistory 轮
func (h *ConversationHandler) window() []core.ConversationTurn {
	if h.maxHistory < 0 || len(h.turns) <= h.maxHistory {
		return h.turns
	}
	return h.turns[len(h.turns)-h.maxHistory:]
}

func (h *ConversationHandler) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// History 返回完整历史的副本
func (h *ConversationHandler) History() []core.ConversationTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.ConversationTurn(nil), h.turns...)
}

// Snapshot 导出会话状态，未开始时返回 false
func (h *ConversationHandler) Snapshot() (core.SessionSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return core.SessionSnapshot{}, false
	}
	return core.SessionSnapshot{
		VideoID:      h.videoID,
		SystemPrompt: h.systemPrompt,
		Turns:        append([]core.ConversationTurn(nil), h.turns...),
		UpdatedAt:    time.Now().UTC(),
	}, true
}

// Restore 从快照恢复，直接进入 ACTIVE
func (h *ConversationHandler) Restore(snap core.SessionSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = true
	h.videoID = snap.VideoID
	h.systemPrompt = snap.SystemPrompt
	h.turns = append([]core.ConversationTurn(nil), snap.Turns...)
}
