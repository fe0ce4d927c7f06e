package processors

import (
	"context"
	"strings"

	"videoInsight/core"
	"videoInsight/logger"
	"videoInsight/storage"
)

const summaryContextDocs = 10

// Summarizer 检索已存储的分析段落并生成整体摘要
type Summarizer struct {
	store storage.DocumentStore
	model ChatModel
	opts  CompletionOptions
	log   *logger.Logger
}

func NewSummarizer(store storage.DocumentStore, model ChatModel, modelName string, maxTokens int, log *logger.Logger) *Summarizer {
	return &Summarizer{
		store: store,
		model: model,
		opts: CompletionOptions{
			Model:       modelName,
			MaxTokens:   maxTokens,
			Temperature: 0,
			TopP:        0.95,
		},
		log: log.With("service", "Summarizer"),
	}
}

// Summarize 总是返回文本：成功为摘要，无数据或失败时返回固定提示
func (s *Summarizer) Summarize(ctx context.Context, videoID string) string {
	docs := s.retrieve(ctx, videoID)
	if len(docs) == 0 {
		s.log.Warn("no analysis documents found", "video_id", videoID)
		return NoAnalysisDataText
	}

	messages := []core.ChatMessage{{Role: core.RoleUser, Content: SummaryPrompt(strings.Join(docs, "\n\n"))}}
	summary, err := s.model.Complete(ctx, messages, s.opts)
	if err != nil {
		s.log.Error("summary generation failed", "video_id", videoID, "error", err)
		return SummaryFailedText
	}

	meta := storage.Metadata{VideoID: videoID, Section: core.Summary}
	if err := s.store.Add(ctx, summary, meta, core.SectionKey(videoID, core.Summary)); err != nil {
		s.log.Error("failed to persist summary", "video_id", videoID, "error", err)
		return SummaryFailedText
	}

	s.log.Info("summary generated", "video_id", videoID, "documents", len(docs), "chars", len(summary))
	return summary
}

// retrieve 查询异常按无结果处理，并丢弃空文本
func (s *Summarizer) retrieve(ctx context.Context, videoID string) []string {
	raw, err := s.store.Query(ctx, AnalysisQuery(videoID), summaryContextDocs, storage.WithVideoID(videoID))
	if err != nil {
		s.log.Warn("analysis query failed", "video_id", videoID, "error", err)
		return nil
	}
	docs := make([]string, 0, len(raw))
	for _, d := range raw {
		if strings.TrimSpace(d) != "" {
			docs = append(docs, d)
		}
	}
	return docs
}
