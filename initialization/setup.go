package initialization

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"videoInsight/annotator"
	"videoInsight/config"
	"videoInsight/logger"
	"videoInsight/processors"
	"videoInsight/storage"
	"videoInsight/utils"
)

// Services 组装好的服务集合
type Services struct {
	Config       *config.Config
	Logger       *logger.Logger
	Embedder     storage.Embedder
	Store        storage.DocumentStore
	StoreKind    string
	Sessions     storage.SessionStore
	SessionsKind string
	ChatModel    processors.ChatModel
	Annotator    annotator.VideoAnnotator
	Analyzer     *processors.Analyzer
	Registry     *processors.Registry
	Downloader   *utils.YouTubeDownloader

	closers []func() error
}

// Close 按创建的逆序释放资源
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SystemInitializer 系统初始化器
type SystemInitializer struct {
	cfg *config.Config
	log *logger.Logger

	// 测试可替换
	newAnnotator func(ctx context.Context) (annotator.VideoAnnotator, func() error, error)
	chatModel    processors.ChatModel
}

// NewSystemInitializer 创建系统初始化器
func NewSystemInitializer(cfg *config.Config, log *logger.Logger) *SystemInitializer {
	si := &SystemInitializer{cfg: cfg, log: log.With("service", "Initializer")}
	si.newAnnotator = si.gcpAnnotator
	return si
}

// WithAnnotator 使用给定的标注器
func (si *SystemInitializer) WithAnnotator(a annotator.VideoAnnotator) *SystemInitializer {
	si.newAnnotator = func(context.Context) (annotator.VideoAnnotator, func() error, error) {
		return a, nil, nil
	}
	return si
}

// WithChatModel 使用给定的聊天模型
func (si *SystemInitializer) WithChatModel(m processors.ChatModel) *SystemInitializer {
	si.chatModel = m
	return si
}

// InitializeSystem 初始化整个系统
func (si *SystemInitializer) InitializeSystem(ctx context.Context) (*Services, error) {
	cfg := si.cfg
	svc := &Services{Config: cfg, Logger: si.log}

	// 1. 数据目录
	for _, dir := range []string{cfg.UploadDir, cfg.DownloadDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if cfg.Store == "sqlite" {
		if err := utils.EnsureDir(filepath.Dir(cfg.SQLitePath)); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	// 2. 文档存储
	svc.Embedder = storage.NewEmbedder(cfg)
	svc.Store, svc.StoreKind = storage.NewDocumentStore(ctx, cfg, svc.Embedder, si.log)
	svc.closers = append(svc.closers, svc.Store.Close)

	// 3. 会话快照
	svc.Sessions, svc.SessionsKind = si.sessionStore(ctx)
	svc.closers = append(svc.closers, svc.Sessions.Close)

	// 4. 聊天模型
	svc.ChatModel = si.chatModel
	if svc.ChatModel == nil {
		if !cfg.HasValidAPI() {
			si.log.Warn("chat API key not configured, model calls will fail")
		}
		svc.ChatModel = processors.NewOpenAIChatModel(cfg.APIKey, cfg.BaseURL)
	}

	// 5. 标注器
	a, closeFn, err := si.newAnnotator(ctx)
	if err != nil {
		si.log.Warn("video annotator unavailable, analysis requests will fail", "error", err)
		a = annotator.Unavailable{Err: err}
	}
	if closeFn != nil {
		svc.closers = append(svc.closers, closeFn)
	}
	svc.Annotator = a

	// 6. 业务服务
	summarizer := processors.NewSummarizer(svc.Store, svc.ChatModel, cfg.ChatModel, cfg.MaxTokens, si.log)
	svc.Analyzer = processors.NewAnalyzer(svc.Annotator, svc.Store, summarizer, si.log)
	svc.Registry = processors.NewRegistry(svc.Store, svc.ChatModel, processors.ConversationOptions{
		Model:      cfg.ChatModel,
		MaxTokens:  cfg.MaxTokens,
		MaxHistory: cfg.MaxHistoryMessages,
	}, svc.Sessions, si.log)
	svc.Downloader = utils.NewYouTubeDownloader(cfg.YtDlpPath, cfg.DownloadDir)

	si.log.Info("system initialized",
		"store", svc.StoreKind,
		"sessions", svc.SessionsKind,
		"chat_model", cfg.ChatModel,
		"embedding_dim", svc.Embedder.Dimension())
	return svc, nil
}

func (si *SystemInitializer) sessionStore(ctx context.Context) (storage.SessionStore, string) {
	if si.cfg.SessionStore == "redis" {
		rs, err := storage.NewRedisSessionStore(ctx, si.cfg.RedisAddr, si.cfg.RedisPassword, si.cfg.RedisDB, si.cfg.SessionTTL())
		if err == nil {
			si.log.Info("session store ready", "backend", "redis", "addr", si.cfg.RedisAddr)
			return rs, "redis"
		}
		si.log.Warn("redis session store unavailable, falling back to memory", "error", err)
	}
	return storage.NewMemorySessionStore(), "memory"
}

func (si *SystemInitializer) gcpAnnotator(ctx context.Context) (annotator.VideoAnnotator, func() error, error) {
	a, err := annotator.NewGCPAnnotator(ctx, annotator.Options{
		Credentials:  si.cfg.GoogleCredentials,
		LanguageCode: si.cfg.LanguageCode,
		GCSBucket:    si.cfg.GCSBucket,
		InlineLimit:  int64(si.cfg.InlineLimitMB) * 1024 * 1024,
		Timeout:      si.cfg.AnnotationTimeout(),
	}, si.log)
	if err != nil {
		return nil, nil, err
	}
	return a, a.Close, nil
}
