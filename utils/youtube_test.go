package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestYouTubeDownloadReturnsMergedFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "My Video.mp4")
	if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	var gotArgs []string
	d := NewYouTubeDownloader("", dir)
	d.Run = func(ctx context.Context, name string, args ...string) (string, string, error) {
		if name != "yt-dlp" {
			t.Errorf("binary = %q", name)
		}
		gotArgs = args
		stderr := "[download] stuff\nWARNING: [youtube] falling back to generic extractor\n"
		return filepath.Join(dir, "My Video.webm") + "\n", stderr, nil
	}

	path, err := d.Download(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != target {
		t.Errorf("path = %q, want %q", path, target)
	}
	if !strings.Contains(strings.Join(gotArgs, " "), "--merge-output-format mp4") {
		t.Errorf("merge format not requested: %v", gotArgs)
	}
}

func TestYouTubeDownloadErrors(t *testing.T) {
	tests := []struct {
		output string
		want   error
		text   string
	}{
		{"ERROR: [youtube] abc: Private video. Sign in", ErrPrivateVideo, "This video is private"},
		{"ERROR: [youtube] abc: This video is unavailable", ErrUnavailableVideo, "This video is unavailable"},
		{"ERROR: unable to resolve host", nil, "Error downloading video: ERROR: unable to resolve host"},
	}
	for _, tt := range tests {
		d := NewYouTubeDownloader("yt-dlp", t.TempDir())
		d.Run = func(ctx context.Context, name string, args ...string) (string, string, error) {
			return "", tt.output, errors.New("exit status 1")
		}
		_, err := d.Download(context.Background(), "https://youtu.be/abc")
		if err == nil {
			t.Fatalf("expected error for %q", tt.output)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("err = %v, want %v", err, tt.want)
		}
		if err.Error() != tt.text {
			t.Errorf("message = %q, want %q", err.Error(), tt.text)
		}
	}
}

func TestYouTubeDownloadUsesUniqueOutputTemplate(t *testing.T) {
	dir := t.TempDir()
	var templates []string
	d := NewYouTubeDownloader("yt-dlp", dir)
	d.Run = func(ctx context.Context, name string, args ...string) (string, string, error) {
		for i, a := range args {
			if a == "-o" {
				templates = append(templates, args[i+1])
			}
		}
		return "", "", nil
	}

	for i := 0; i < 2; i++ {
		_, _ = d.Download(context.Background(), "https://youtu.be/abc")
	}
	if len(templates) != 2 {
		t.Fatalf("templates = %v", templates)
	}
	if templates[0] == templates[1] {
		t.Errorf("two downloads of one video share the output path %q", templates[0])
	}
	for _, tpl := range templates {
		if filepath.Dir(tpl) != dir || !strings.HasSuffix(tpl, "_%(title)s.%(ext)s") {
			t.Errorf("unexpected template %q", tpl)
		}
	}
}

func TestYouTubeDownloadIgnoresStderrWarnings(t *testing.T) {
	d := NewYouTubeDownloader("yt-dlp", t.TempDir())
	d.Run = func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "WARNING: unable to extract uploader\n", nil
	}
	_, err := d.Download(context.Background(), "https://youtu.be/abc")
	if err == nil || !strings.Contains(err.Error(), "no output file") {
		t.Errorf("err = %v, want missing output file", err)
	}
}
