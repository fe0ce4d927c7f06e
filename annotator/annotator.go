package annotator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"videoInsight/core"
)

// VideoAnnotator 提交视频并返回六类标注结果
type VideoAnnotator interface {
	Annotate(ctx context.Context, src VideoSource) (*core.AnnotationResult, error)
}

// VideoSource 本地文件、内存字节或 gs:// URI 三选一
type VideoSource struct {
	Path    string
	Content []byte
	URI     string
}

func FromFile(path string) VideoSource     { return VideoSource{Path: path} }
func FromBytes(content []byte) VideoSource { return VideoSource{Content: content} }
func FromURI(uri string) VideoSource       { return VideoSource{URI: uri} }

// Describe 日志用的简短描述
func (s VideoSource) Describe() string {
	switch {
	case s.URI != "":
		return s.URI
	case s.Path != "":
		return s.Path
	default:
		return fmt.Sprintf("<%d bytes>", len(s.Content))
	}
}

// Validate 检查输入是否可用
func (s VideoSource) Validate() error {
	switch {
	case s.URI != "":
		if !strings.HasPrefix(s.URI, "gs://") {
			return fmt.Errorf("video uri must be gs://..., got %q", s.URI)
		}
		return nil
	case s.Path != "":
		info, err := os.Stat(s.Path)
		if err != nil {
			return fmt.Errorf("read video %s: %w", s.Path, err)
		}
		if info.Size() == 0 {
			return fmt.Errorf("%s: %w", s.Path, core.ErrEmptyVideo)
		}
		return nil
	case len(s.Content) > 0:
		return nil
	}
	return core.ErrEmptyVideo
}

// Unavailable 标注服务无法初始化时的占位实现，每次调用都返回初始化错误
type Unavailable struct {
	Err error
}

func (u Unavailable) Annotate(ctx context.Context, src VideoSource) (*core.AnnotationResult, error) {
	return nil, fmt.Errorf("video annotator unavailable: %w", u.Err)
}
