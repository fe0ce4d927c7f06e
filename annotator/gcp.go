package annotator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"videoInsight/core"
	"videoInsight/logger"
	"videoInsight/utils"
)

// Options GCP Video Intelligence 参数
type Options struct {
	// Credentials 服务账号文件路径或 JSON 内容，为空时使用默认凭证
	Credentials  string
	LanguageCode string
	// GCSBucket 非空时，超过 InlineLimit 的本地视频先上传到该 bucket
	GCSBucket   string
	InlineLimit int64
	Timeout     time.Duration
	MaxRetries  int
}

// GCPAnnotator 基于 Google Cloud Video Intelligence 的标注器
type GCPAnnotator struct {
	log     *logger.Logger
	client  *videointelligence.Client
	bucket  *storage.Client
	opts    Options
	backoff time.Duration
}

// ClientOptions 根据凭证字符串构造客户端参数
func ClientOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func NewGCPAnnotator(ctx context.Context, opts Options, log *logger.Logger) (*GCPAnnotator, error) {
	if opts.LanguageCode == "" {
		opts.LanguageCode = "en-US"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Minute
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 4
	}

	c, err := videointelligence.NewClient(ctx, ClientOptions(opts.Credentials)...)
	if err != nil {
		return nil, fmt.Errorf("videointelligence client: %w", err)
	}

	a := &GCPAnnotator{
		log:     log.With("service", "GCPAnnotator"),
		client:  c,
		opts:    opts,
		backoff: 750 * time.Millisecond,
	}
	if opts.GCSBucket != "" {
		stOpts := append(ClientOptions(opts.Credentials), option.WithScopes(storage.ScopeReadWrite))
		st, err := storage.NewClient(ctx, stOpts...)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		a.bucket = st
	}
	return a, nil
}

func (a *GCPAnnotator) Close() error {
	var errs []error
	if a.bucket != nil {
		errs = append(errs, a.bucket.Close())
	}
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	return errors.Join(errs...)
}

// BuildRequest 构造请求：六类特征，人脸/人物包含边框与属性，语音开启自动标点
func BuildRequest(languageCode string) *vipb.AnnotateVideoRequest {
	return &vipb.AnnotateVideoRequest{
		Features: []vipb.Feature{
			vipb.Feature_LABEL_DETECTION,
			vipb.Feature_FACE_DETECTION,
			vipb.Feature_PERSON_DETECTION,
			vipb.Feature_SHOT_CHANGE_DETECTION,
			vipb.Feature_OBJECT_TRACKING,
			vipb.Feature_SPEECH_TRANSCRIPTION,
		},
		VideoContext: &vipb.VideoContext{
			FaceDetectionConfig: &vipb.FaceDetectionConfig{
				IncludeBoundingBoxes: true,
				IncludeAttributes:    true,
			},
			PersonDetectionConfig: &vipb.PersonDetectionConfig{
				IncludeBoundingBoxes: true,
				IncludeAttributes:    true,
				IncludePoseLandmarks: true,
			},
			SpeechTranscriptionConfig: &vipb.SpeechTranscriptionConfig{
				LanguageCode:               languageCode,
				EnableAutomaticPunctuation: true,
			},
		},
	}
}

// Annotate 提交标注并在超时上限内等待结果
// 超时返回 core.ErrAnnotationTimeout，远端任务不会被取消
func (a *GCPAnnotator) Annotate(ctx context.Context, src VideoSource) (*core.AnnotationResult, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	req := BuildRequest(a.opts.LanguageCode)
	cleanup, err := a.attachInput(ctx, req, src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	start := time.Now()
	a.log.Info("submitting video for annotation", "source", src.Describe(), "timeout", a.opts.Timeout.String())

	op, err := retryTransient(ctx, a.log, a.opts.MaxRetries, a.backoff, func() (*videointelligence.AnnotateVideoOperation, error) {
		return a.client.AnnotateVideo(ctx, req)
	})
	if err != nil {
		return nil, a.classify(ctx, err, "submit")
	}

	a.log.Info("waiting for annotation operation", "operation", op.Name())
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, a.classify(ctx, err, "wait")
	}

	a.log.Info("annotation completed", "source", src.Describe(), "elapsed", time.Since(start).String())
	return ConvertResponse(resp), nil
}

func (a *GCPAnnotator) classify(ctx context.Context, err error, stage string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("annotation timed out", "stage", stage, "timeout", a.opts.Timeout.String())
		return fmt.Errorf("%w after %s", core.ErrAnnotationTimeout, a.opts.Timeout)
	}
	return fmt.Errorf("videointelligence AnnotateVideo (%s): %w", stage, err)
}

// attachInput 根据输入类型设置 InputUri 或 InputContent，返回清理函数
func (a *GCPAnnotator) attachInput(ctx context.Context, req *vipb.AnnotateVideoRequest, src VideoSource) (func(), error) {
	noop := func() {}
	switch {
	case src.URI != "":
		req.InputUri = src.URI
		return noop, nil
	case len(src.Content) > 0:
		req.InputContent = src.Content
		return noop, nil
	}

	size, err := utils.GetFileSize(src.Path)
	if err != nil {
		return noop, fmt.Errorf("read video %s: %w", src.Path, err)
	}
	if a.bucket != nil && a.opts.InlineLimit > 0 && size > a.opts.InlineLimit {
		a.log.Info("video exceeds inline limit, staging to GCS",
			"size", utils.FormatSize(size), "limit", utils.FormatSize(a.opts.InlineLimit))
		uri, cleanup, err := a.stage(ctx, src.Path)
		if err != nil {
			return noop, err
		}
		req.InputUri = uri
		return cleanup, nil
	}

	content, err := os.ReadFile(src.Path)
	if err != nil {
		return noop, fmt.Errorf("read video %s: %w", src.Path, err)
	}
	req.InputContent = content
	return noop, nil
}

// stage 上传本地视频到 GCS，清理函数删除临时对象
func (a *GCPAnnotator) stage(ctx context.Context, path string) (string, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open video %s: %w", path, err)
	}
	defer f.Close()

	key := fmt.Sprintf("staging/%s_%s", utils.NewID(), utils.SafeFilename(filepath.Base(path)))
	obj := a.bucket.Bucket(a.opts.GCSBucket).Object(key)

	w := obj.NewWriter(ctx)
	w.ContentType = contentTypeForKey(key)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", nil, fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", a.opts.GCSBucket, key)
	a.log.Info("staged video to GCS", "uri", uri)
	cleanup := func() {
		delCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := obj.Delete(delCtx); err != nil {
			a.log.Warn("failed to delete staged video", "uri", uri, "error", err)
		}
	}
	return uri, cleanup, nil
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	}
	return "application/octet-stream"
}

// retryTransient 对 Unavailable/ResourceExhausted 做指数退避重试，上限 10s
func retryTransient[T any](ctx context.Context, log *logger.Logger, maxRetries int, backoff time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var last error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		out, err := fn()
		if err == nil {
			return out, nil
		}
		last = err

		if !isTransient(err) {
			return zero, err
		}
		if attempt == maxRetries {
			break
		}
		log.Warn("transient annotate error, retrying", "attempt", attempt+1, "backoff", backoff.String(), "error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return zero, last
}

func isTransient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted:
		return true
	}
	return false
}
