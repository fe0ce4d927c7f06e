package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"videoInsight/core"
	"videoInsight/storage"
	"videoInsight/utils"
)

const healthCheckTimeout = 5 * time.Second

// HealthCheckFunc 单项依赖探测
type HealthCheckFunc func(ctx context.Context) (string, error)

type namedCheck struct {
	name     string
	fn       HealthCheckFunc
	critical bool
}

// HealthHandler 汇总各依赖的健康状态
// 关键检查失败时返回 503，非关键检查失败只标记 warning
type HealthHandler struct {
	store     string
	sessions  string
	chatModel string
	checks    []namedCheck
}

func NewHealthHandler(store, sessions, chatModel string) *HealthHandler {
	return &HealthHandler{store: store, sessions: sessions, chatModel: chatModel}
}

// AddCheck 注册检查项
func (h *HealthHandler) AddCheck(name string, fn HealthCheckFunc, critical bool) *HealthHandler {
	h.checks = append(h.checks, namedCheck{name: name, fn: fn, critical: critical})
	return h
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	status := core.HealthStatus{
		Status:    "ok",
		Store:     h.store,
		Sessions:  h.sessions,
		ChatModel: h.chatModel,
		System: core.SystemInfo{
			OS:           runtime.GOOS,
			Arch:         runtime.GOARCH,
			GoVersion:    runtime.Version(),
			NumCPU:       runtime.NumCPU(),
			NumGoroutine: runtime.NumGoroutine(),
		},
		Timestamp: time.Now().UTC(),
	}

	if len(h.checks) > 0 {
		status.Checks = make(map[string]core.HealthCheck, len(h.checks))
	}
	for _, chk := range h.checks {
		result := runCheck(c.Request.Context(), chk)
		status.Checks[chk.name] = result
		if result.Status == "error" {
			status.Status = "degraded"
		}
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func runCheck(ctx context.Context, chk namedCheck) core.HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	msg, err := chk.fn(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		status := "warning"
		if chk.critical {
			status = "error"
		}
		return core.HealthCheck{Status: status, Message: err.Error(), Latency: latency}
	}
	return core.HealthCheck{Status: "ok", Message: msg, Latency: latency}
}

// ---------------- Checks ----------------

// StoreCheck 用一次 top-1 查询探测文档存储
func StoreCheck(store storage.DocumentStore) HealthCheckFunc {
	return func(ctx context.Context) (string, error) {
		if _, err := store.Query(ctx, "health check", 1); err != nil {
			return "", fmt.Errorf("document store query failed: %w", err)
		}
		return "document store reachable", nil
	}
}

// BinaryCheck 检查外部命令是否可用
func BinaryCheck(binary string) HealthCheckFunc {
	return func(ctx context.Context) (string, error) {
		out, err := utils.RunCommand(ctx, binary, "--version")
		if err != nil {
			return "", fmt.Errorf("%s not available: %w", binary, err)
		}
		version := strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
		return fmt.Sprintf("%s available: %s", binary, version), nil
	}
}

// WritableDirCheck 检查目录是否可写
func WritableDirCheck(dir string) HealthCheckFunc {
	return func(ctx context.Context) (string, error) {
		if err := utils.EnsureDir(dir); err != nil {
			return "", fmt.Errorf("directory %s unavailable: %w", dir, err)
		}
		marker := filepath.Join(dir, ".health_check")
		if err := os.WriteFile(marker, []byte("health check"), 0644); err != nil {
			return "", fmt.Errorf("directory %s not writable: %w", dir, err)
		}
		_ = os.Remove(marker)
		return fmt.Sprintf("directory %s writable", dir), nil
	}
}

// CacheStats 提供缓存指标
type CacheStats interface {
	Metrics() storage.CacheMetrics
}

// CacheCheck 报告向量缓存命中情况，始终视为通过
func CacheCheck(cache CacheStats) HealthCheckFunc {
	return func(ctx context.Context) (string, error) {
		m := cache.Metrics()
		return fmt.Sprintf("entries=%d hits=%d misses=%d evictions=%d", m.EntryCount, m.Hits, m.Misses, m.Evictions), nil
	}
}
