package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPrivateVideo     = errors.New("This video is private")
	ErrUnavailableVideo = errors.New("This video is unavailable")
)

// CommandRunner 执行外部命令并分别返回 stdout、stderr，测试中可替换
type CommandRunner func(ctx context.Context, name string, args ...string) (string, string, error)

// YouTubeDownloader 通过 yt-dlp 下载视频
type YouTubeDownloader struct {
	Binary string
	Dir    string
	Run    CommandRunner
}

// NewYouTubeDownloader 创建下载器
func NewYouTubeDownloader(binary, dir string) *YouTubeDownloader {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YouTubeDownloader{Binary: binary, Dir: dir, Run: CaptureCommand}
}

// Download 下载最佳画质并合并为 mp4，返回本地文件路径
func (d *YouTubeDownloader) Download(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("Error downloading video: empty url")
	}
	if err := EnsureDir(d.Dir); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	// 每次下载使用独立前缀，并发下载同一视频不会共用文件
	args := []string{
		"-f", "bestvideo+bestaudio/best",
		"--merge-output-format", "mp4",
		"-o", filepath.Join(d.Dir, NewID()+"_%(title)s.%(ext)s"),
		"--print", "after_move:filepath",
		"--no-progress",
		url,
	}
	stdout, stderr, err := d.Run(ctx, d.Binary, args...)
	if err != nil {
		return "", classifyDownloadError(stderr+"\n"+stdout, err)
	}

	// --print 的结果只在 stdout，警告信息在 stderr
	path := lastLine(stdout)
	if path == "" {
		return "", fmt.Errorf("Error downloading video: yt-dlp reported no output file")
	}
	if !strings.HasSuffix(path, ".mp4") {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ".mp4"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("expected file %s not found: %w", abs, err)
	}
	return abs, nil
}

func classifyDownloadError(output string, err error) error {
	switch {
	case strings.Contains(output, "Private video"):
		return ErrPrivateVideo
	case strings.Contains(output, "This video is unavailable"):
		return ErrUnavailableVideo
	}
	detail := lastLine(output)
	if detail == "" {
		detail = err.Error()
	}
	return fmt.Errorf("Error downloading video: %s", detail)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
