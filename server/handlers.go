package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"videoInsight/annotator"
	"videoInsight/core"
	"videoInsight/logger"
	"videoInsight/utils"
)

// VideoAnalyzer 视频分析
type VideoAnalyzer interface {
	Analyze(ctx context.Context, src annotator.VideoSource) (string, string, error)
}

// Conversations 按视频管理的对话
type Conversations interface {
	Start(ctx context.Context, videoID, seedText string)
	Respond(ctx context.Context, videoID, userText string) (string, error)
	History(ctx context.Context, videoID string) ([]core.ConversationTurn, error)
	Reset(ctx context.Context, videoID string) error
}

// Downloader 远程视频下载
type Downloader interface {
	Download(ctx context.Context, url string) (string, error)
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// ---------------- Video ----------------

type VideoHandler struct {
	analyzer   VideoAnalyzer
	sessions   Conversations
	downloader Downloader
	uploadDir  string
	maxUpload  int64
	log        *logger.Logger
}

func NewVideoHandler(analyzer VideoAnalyzer, sessions Conversations, downloader Downloader, uploadDir string, maxUpload int64, log *logger.Logger) *VideoHandler {
	return &VideoHandler{
		analyzer:   analyzer,
		sessions:   sessions,
		downloader: downloader,
		uploadDir:  uploadDir,
		maxUpload:  maxUpload,
		log:        log.With("service", "VideoHandler"),
	}
}

func (h *VideoHandler) tooLarge(c *gin.Context) {
	respondError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large (max %s)", utils.FormatSize(h.maxUpload)))
}

// POST /analyze  multipart: file
func (h *VideoHandler) Analyze(c *gin.Context) {
	if c.Request.ContentLength > h.maxUpload+multipartOverhead {
		h.tooLarge(c)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig), strings.Contains(err.Error(), "request body too large"):
			h.tooLarge(c)
		case errors.Is(err, http.ErrMissingFile):
			respondError(c, http.StatusBadRequest, "No file part")
		default:
			respondError(c, http.StatusBadRequest, err.Error())
		}
		return
	}
	if fh.Filename == "" {
		respondError(c, http.StatusBadRequest, "No selected file")
		return
	}
	if !utils.AllowedVideoFile(fh.Filename) {
		respondError(c, http.StatusBadRequest, "File type not allowed")
		return
	}
	if fh.Size > h.maxUpload {
		h.tooLarge(c)
		return
	}

	path := filepath.Join(h.uploadDir, fmt.Sprintf("%s_%s", utils.NewID(), utils.SafeFilename(fh.Filename)))
	if err := utils.EnsureDir(h.uploadDir); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := c.SaveUploadedFile(fh, path); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	defer h.remove(path)

	h.log.Info("video uploaded", "file", fh.Filename, "size", utils.FormatSize(fh.Size))
	h.analyze(c, annotator.FromFile(path))
}

// POST /analyze-youtube  {"url": "..."}
func (h *VideoHandler) AnalyzeYouTube(c *gin.Context) {
	var req core.AnalyzeYouTubeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		respondError(c, http.StatusBadRequest, "Missing url")
		return
	}

	path, err := h.downloader.Download(c.Request.Context(), req.URL)
	if err != nil {
		h.log.Warn("youtube download failed", "url", req.URL, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, utils.ErrPrivateVideo) || errors.Is(err, utils.ErrUnavailableVideo) {
			status = http.StatusBadRequest
		}
		respondError(c, status, err.Error())
		return
	}
	defer h.remove(path)

	h.analyze(c, annotator.FromFile(path))
}

func (h *VideoHandler) analyze(c *gin.Context, src annotator.VideoSource) {
	ctx := c.Request.Context()
	start := time.Now()

	videoID, summary, err := h.analyzer.Analyze(ctx, src)
	if err != nil {
		h.log.Error("video analysis failed", "source", src.Describe(), "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrAnnotationTimeout) {
			status = http.StatusGatewayTimeout
		}
		respondError(c, status, err.Error())
		return
	}

	h.sessions.Start(ctx, videoID, summary)
	h.log.Info("video analyzed", "video_id", videoID, "elapsed", time.Since(start).String())
	c.JSON(http.StatusOK, core.AnalyzeResponse{VideoID: videoID, Result: summary})
}

func (h *VideoHandler) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		h.log.Warn("failed to remove video file", "path", path, "error", err)
	}
}

// multipart 头部和边界的额外字节
const multipartOverhead = 1 << 20

// ---------------- Conversation ----------------

type ConversationHandler struct {
	sessions Conversations
	log      *logger.Logger
}

func NewConversationHandler(sessions Conversations, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{sessions: sessions, log: log.With("service", "ConversationHandler")}
}

// POST /conversation/start  {"video_id", "seed_text"}
func (h *ConversationHandler) Start(c *gin.Context) {
	var req core.StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.VideoID) == "" {
		respondError(c, http.StatusBadRequest, "Missing video_id")
		return
	}
	h.sessions.Start(c.Request.Context(), req.VideoID, req.SeedText)
	c.Status(http.StatusNoContent)
}

// POST /conversation  {"video_id", "user_input"}
func (h *ConversationHandler) Respond(c *gin.Context) {
	var req core.ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.VideoID) == "" || strings.TrimSpace(req.UserInput) == "" {
		respondError(c, http.StatusBadRequest, "Missing video_id or user_input")
		return
	}

	reply, err := h.sessions.Respond(c.Request.Context(), req.VideoID, req.UserInput)
	if err != nil {
		if errors.Is(err, core.ErrAnalysisNotFound) {
			respondError(c, http.StatusNotFound, "Video analysis not found")
			return
		}
		h.log.Error("conversation failed", "video_id", req.VideoID, "error", err)
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, core.ConversationResponse{Response: reply})
}

// GET /conversation/:video_id/history
func (h *ConversationHandler) History(c *gin.Context) {
	videoID := c.Param("video_id")
	turns, err := h.sessions.History(c.Request.Context(), videoID)
	if err != nil {
		if errors.Is(err, core.ErrConversationNotStarted) {
			respondError(c, http.StatusNotFound, "Conversation not found")
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if turns == nil {
		turns = []core.ConversationTurn{}
	}
	c.JSON(http.StatusOK, core.HistoryResponse{VideoID: videoID, Turns: turns})
}

// DELETE /conversation/:video_id
func (h *ConversationHandler) Reset(c *gin.Context) {
	if err := h.sessions.Reset(c.Request.Context(), c.Param("video_id")); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
