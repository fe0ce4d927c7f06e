package processors

import (
	"context"
	"errors"
	"strings"
	"testing"

	"videoInsight/core"
	"videoInsight/logger"
	"videoInsight/storage"
)

func TestSummarizeNoDocumentsSkipsModel(t *testing.T) {
	store := newFakeStore("v")
	chat := &fakeChat{}
	s := NewSummarizer(store, chat, "mixtral-8x7b-32768", 8192, logger.Nop())

	if got := s.Summarize(context.Background(), "video_1_abcd1234"); got != NoAnalysisDataText {
		t.Errorf("got %q, want %q", got, NoAnalysisDataText)
	}
	if chat.calls() != 0 {
		t.Errorf("model called %d times, want 0", chat.calls())
	}
}

func TestSummarizeOnlyEmptyDocuments(t *testing.T) {
	store := newFakeStore("v", "", "  ")
	chat := &fakeChat{}
	s := NewSummarizer(store, chat, "m", 100, logger.Nop())

	if got := s.Summarize(context.Background(), "v"); got != NoAnalysisDataText {
		t.Errorf("got %q", got)
	}
	if chat.calls() != 0 {
		t.Error("model should not be called")
	}
}

func TestSummarizeBuildsPromptAndPersists(t *testing.T) {
	store := newFakeStore("video_9_deadbeef", "A", "", "B")
	chat := &fakeChat{replies: []string{"the summary"}}
	s := NewSummarizer(store, chat, "mixtral-8x7b-32768", 8192, logger.Nop())

	got := s.Summarize(context.Background(), "video_9_deadbeef")
	if got != "the summary" {
		t.Fatalf("got %q", got)
	}

	if len(store.queries) != 1 {
		t.Fatalf("queries = %d", len(store.queries))
	}
	q := store.queries[0]
	if q.text != "Video analysis for video_9_deadbeef" || q.topK != 10 || q.filter != (storage.QueryFilter{VideoID: "video_9_deadbeef"}) {
		t.Errorf("unexpected query %+v", q)
	}

	req := chat.lastRequest()
	if len(req) != 1 || req[0].Role != core.RoleUser {
		t.Fatalf("unexpected request %+v", req)
	}
	if !strings.Contains(req[0].Content, "<video_analysis>\nA\n\nB\n</video_analysis>") {
		t.Errorf("prompt does not contain joined documents:\n%s", req[0].Content)
	}

	opts := chat.options[0]
	if opts.Temperature != 0 || opts.TopP != 0.95 || opts.MaxTokens != 8192 || opts.Model != "mixtral-8x7b-32768" {
		t.Errorf("unexpected options %+v", opts)
	}

	if store.added["video_9_deadbeef_SUMMARY"] != "the summary" {
		t.Errorf("summary not persisted: %+v", store.added)
	}
}

func TestSummarizeFailures(t *testing.T) {
	t.Run("model error", func(t *testing.T) {
		store := newFakeStore("v", "A")
		s := NewSummarizer(store, &fakeChat{err: errModelDown}, "m", 10, logger.Nop())
		if got := s.Summarize(context.Background(), "v"); got != SummaryFailedText {
			t.Errorf("got %q", got)
		}
		if len(store.added) != 0 {
			t.Error("nothing should be persisted")
		}
	})

	t.Run("persist error", func(t *testing.T) {
		store := newFakeStore("v", "A")
		store.addErr = errors.New("disk full")
		s := NewSummarizer(store, &fakeChat{}, "m", 10, logger.Nop())
		if got := s.Summarize(context.Background(), "v"); got != SummaryFailedText {
			t.Errorf("got %q", got)
		}
	})

	t.Run("query error means no data", func(t *testing.T) {
		store := newFakeStore("v", "A")
		store.queryErr = errors.New("connection reset")
		chat := &fakeChat{}
		s := NewSummarizer(store, chat, "m", 10, logger.Nop())
		if got := s.Summarize(context.Background(), "v"); got != NoAnalysisDataText {
			t.Errorf("got %q", got)
		}
		if chat.calls() != 0 {
			t.Error("model should not be called")
		}
	})
}

func TestSummarizeIgnoresOtherVideos(t *testing.T) {
	store := newFakeStore("video_a", "LABEL DETECTION:\nLabel: dog\n")
	chat := &fakeChat{}
	s := NewSummarizer(store, chat, "m", 100, logger.Nop())

	if got := s.Summarize(context.Background(), "video_b"); got != NoAnalysisDataText {
		t.Errorf("got %q, want %q", got, NoAnalysisDataText)
	}
	if chat.calls() != 0 {
		t.Error("model should not see another video's sections")
	}
}
