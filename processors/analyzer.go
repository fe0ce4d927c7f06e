package processors

import (
	"context"
	"fmt"
	"time"

	"videoInsight/annotator"
	"videoInsight/core"
	"videoInsight/logger"
	"videoInsight/storage"
	"videoInsight/utils"
)

// Analyzer 标注 -> 生成 id -> 逐类格式化入库 -> 摘要
type Analyzer struct {
	annotator  annotator.VideoAnnotator
	store      storage.DocumentStore
	formatter  *Formatter
	summarizer *Summarizer
	newID      func() string
	log        *logger.Logger
}

func NewAnalyzer(a annotator.VideoAnnotator, store storage.DocumentStore, summarizer *Summarizer, log *logger.Logger) *Analyzer {
	return &Analyzer{
		annotator:  a,
		store:      store,
		formatter:  NewFormatter(log),
		summarizer: summarizer,
		newID:      utils.NewVideoID,
		log:        log.With("service", "Analyzer"),
	}
}

// Analyze 返回新视频 id 和摘要文本
// 标注、读取输入或写入存储失败时中止；已写入的段落不回滚
func (a *Analyzer) Analyze(ctx context.Context, src annotator.VideoSource) (string, string, error) {
	start := time.Now()

	result, err := a.annotator.Annotate(ctx, src)
	if err != nil {
		return "", "", fmt.Errorf("annotate %s: %w", src.Describe(), err)
	}

	videoID := a.newID()
	log := a.log.With("video_id", videoID)
	log.Info("annotation received",
		"labels", len(result.Labels),
		"faces", len(result.Faces),
		"persons", len(result.Persons),
		"shots", len(result.Shots),
		"objects", len(result.Objects),
		"speech", len(result.Speech))

	for _, kind := range core.AnnotationKinds {
		section := core.AnalysisSection{
			VideoID: videoID,
			Kind:    kind,
			Text:    a.formatter.Format(kind, result.Records(kind)),
		}
		meta := storage.Metadata{VideoID: videoID, Section: kind}
		if err := a.store.Add(ctx, section.Text, meta, section.Key()); err != nil {
			return videoID, "", fmt.Errorf("store %s: %w", section.Key(), err)
		}
		log.Debug("section stored", "section", kind.String(), "chars", len(section.Text))
	}

	summary := a.summarizer.Summarize(ctx, videoID)
	log.Info("video analysis completed", "elapsed", time.Since(start).String())
	return videoID, summary, nil
}
