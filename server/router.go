package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"videoInsight/logger"
)

// RouterConfig 路由依赖
type RouterConfig struct {
	Video        *VideoHandler
	Conversation *ConversationHandler
	Health       *HealthHandler
	Logger       *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(cfg.Logger.With("service", "HTTP")))
	r.Use(CORS())

	if cfg.Health != nil {
		r.GET("/health", cfg.Health.Health)
	}
	if cfg.Video != nil {
		r.POST("/analyze", cfg.Video.Analyze)
		r.POST("/analyze-youtube", cfg.Video.AnalyzeYouTube)
	}
	if cfg.Conversation != nil {
		r.POST("/conversation/start", cfg.Conversation.Start)
		r.POST("/conversation", cfg.Conversation.Respond)
		r.GET("/conversation/:video_id/history", cfg.Conversation.History)
		r.DELETE("/conversation/:video_id", cfg.Conversation.Reset)
	}
	return r
}

// Server HTTP 服务
type Server struct {
	Engine *gin.Engine
	log    *logger.Logger
	srv    *http.Server
}

func NewServer(cfg RouterConfig) *Server {
	return &Server{Engine: NewRouter(cfg), log: cfg.Logger.With("service", "Server")}
}

// Run 阻塞直到 ctx 结束，随后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.log.Info("shutting down server")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
