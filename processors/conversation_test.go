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

func newHandler(store storage.DocumentStore, chat ChatModel, maxHistory int) *ConversationHandler {
	return NewConversationHandler(store, chat, ConversationOptions{
		Model:      "mixtral-8x7b-32768",
		MaxTokens:  8192,
		MaxHistory: maxHistory,
	}, logger.Nop())
}

func TestRespondBeforeStart(t *testing.T) {
	h := newHandler(newFakeStore("v"), &fakeChat{}, 0)
	_, err := h.Respond(context.Background(), "hi")
	if !errors.Is(err, core.ErrConversationNotStarted) {
		t.Fatalf("err = %v, want ErrConversationNotStarted", err)
	}
	if len(h.History()) != 0 {
		t.Error("history should stay empty")
	}
}

func TestStartUsesStoredSummary(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.Add(ctx, "LABEL DETECTION:\nLabel: cat\n", storage.Metadata{VideoID: "v1", Section: core.LabelDetection}, "v1_LABEL_DETECTION")
	_ = store.Add(ctx, "stored summary", storage.Metadata{VideoID: "v1", Section: core.Summary}, "v1_SUMMARY")

	chat := &fakeChat{}
	h := newHandler(store, chat, 0)
	h.Start(ctx, "v1", "fallback text")

	if _, err := h.Respond(ctx, "what is in it?"); err != nil {
		t.Fatal(err)
	}
	sys := chat.lastRequest()[0].Content
	if !strings.Contains(sys, "\n\nstored summary\n\n") {
		t.Errorf("system prompt should embed the stored summary:\n%s", sys)
	}
	if strings.Contains(sys, "fallback text") {
		t.Error("fallback should not be used when a summary exists")
	}
	if store.Len() != 2 {
		t.Errorf("re-persisting must not create new documents, got %d", store.Len())
	}
}

func TestStartFallsBackWithoutSummary(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	chat := &fakeChat{}
	h := newHandler(store, chat, 0)
	h.Start(ctx, "v2", "seed analysis")

	if _, err := h.Respond(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	if want := SystemPrompt("seed analysis"); chat.lastRequest()[0].Content != want {
		t.Errorf("system prompt mismatch:\n%s", chat.lastRequest()[0].Content)
	}
	if store.Len() != 0 {
		t.Error("fallback should not be persisted")
	}
}

func TestRespondMessageLayout(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore("v", "doc one", "doc two")
	chat := &fakeChat{replies: []string{"first answer", "second answer"}}
	h := newHandler(store, chat, 0)
	h.Start(ctx, "v", "grounding")

	if got, _ := h.Respond(ctx, "q1"); got != "first answer" {
		t.Fatalf("got %q", got)
	}
	if got, _ := h.Respond(ctx, "q2"); got != "second answer" {
		t.Fatalf("got %q", got)
	}

	req := chat.lastRequest()
	want := []core.ChatMessage{
		{Role: core.RoleSystem, Content: SystemPrompt("grounding")},
		{Role: core.RoleSystem, Content: "Additional relevant information:\ndoc one\ndoc two"},
		{Role: core.RoleUser, Content: "q1"},
		{Role: core.RoleAssistant, Content: "first answer"},
		{Role: core.RoleUser, Content: "q2"},
	}
	if len(req) != len(want) {
		t.Fatalf("got %d messages, want %d", len(req), len(want))
	}
	for i := range want {
		if req[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, req[i], want[i])
		}
	}

	summaryLookup := store.queries[0]
	if summaryLookup.topK != 1 || summaryLookup.filter != (storage.QueryFilter{VideoID: "v", Section: core.Summary}) {
		t.Errorf("summary lookup must be scoped to the video's SUMMARY section: %+v", summaryLookup)
	}
	last := store.queries[len(store.queries)-1]
	if last.text != "q2" || last.topK != 3 || last.filter != (storage.QueryFilter{VideoID: "v"}) {
		t.Errorf("unexpected relevant-info query %+v", last)
	}
	opts := chat.options[0]
	if opts.Temperature != 0.5 || opts.MaxTokens != 8192 {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestRespondWithoutRelevantInfo(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChat{}
	h := newHandler(newFakeStore("v"), chat, 0)
	h.Start(ctx, "v", "grounding")

	if _, err := h.Respond(ctx, "anything"); err != nil {
		t.Fatal(err)
	}
	if got := chat.lastRequest()[1].Content; got != "Additional relevant information:\nNo relevant information found." {
		t.Errorf("got %q", got)
	}
}

func TestRespondModelFailure(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChat{err: errModelDown}
	h := newHandler(newFakeStore("v"), chat, 0)
	h.Start(ctx, "v", "grounding")

	got, err := h.Respond(ctx, "why?")
	if err != nil {
		t.Fatalf("model failure should not surface as error: %v", err)
	}
	if got != ConversationErrorText {
		t.Errorf("got %q", got)
	}
	hist := h.History()
	if len(hist) != 1 || hist[0] != (core.ConversationTurn{Role: core.RoleUser, Content: "why?"}) {
		t.Errorf("history = %+v, want only the user turn", hist)
	}
}

func TestStartClearsHistory(t *testing.T) {
	ctx := context.Background()
	h := newHandler(newFakeStore("v"), &fakeChat{}, 0)
	h.Start(ctx, "v", "a")
	_, _ = h.Respond(ctx, "q")
	if len(h.History()) != 2 {
		t.Fatalf("history = %d", len(h.History()))
	}
	h.Start(ctx, "v", "b")
	if len(h.History()) != 0 {
		t.Error("restart should clear history")
	}
}

func TestHistoryWindow(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChat{}
	h := newHandler(newFakeStore("v"), chat, 3)
	h.Start(ctx, "v", "g")

	for _, q := range []string{"q1", "q2", "q3"} {
		if _, err := h.Respond(ctx, q); err != nil {
			t.Fatal(err)
		}
	}
	req := chat.lastRequest()
	// 2 条系统消息 + 最近 3 轮
	if len(req) != 5 {
		t.Fatalf("got %d messages", len(req))
	}
	if req[2].Content != "q2" || req[4].Content != "q3" {
		t.Errorf("window is not the most recent turns: %+v", req[2:])
	}
	if len(h.History()) != 6 {
		t.Errorf("full history should be kept, got %d", len(h.History()))
	}

	unbounded := newHandler(newFakeStore("v"), chat, -1)
	unbounded.Start(ctx, "v", "g")
	for i := 0; i < 30; i++ {
		_, _ = unbounded.Respond(ctx, "q")
	}
	if got := len(chat.lastRequest()); got != 2+59 {
		t.Errorf("unbounded window sent %d messages", got)
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	h := newHandler(newFakeStore("v"), &fakeChat{replies: []string{"a1"}}, 0)
	if _, ok := h.Snapshot(); ok {
		t.Error("inactive handler should not produce a snapshot")
	}
	h.Start(ctx, "v", "g")
	_, _ = h.Respond(ctx, "q1")

	snap, ok := h.Snapshot()
	if !ok || snap.VideoID != "v" || len(snap.Turns) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	chat := &fakeChat{}
	restored := newHandler(newFakeStore("v"), chat, 0)
	restored.Restore(snap)
	if _, err := restored.Respond(ctx, "q2"); err != nil {
		t.Fatal(err)
	}
	req := chat.lastRequest()
	if req[0].Content != SystemPrompt("g") || req[3].Content != "a1" {
		t.Errorf("restored session lost state: %+v", req)
	}
}

func TestRelevantInfoScopedToVideo(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore("v", "LABEL DETECTION:\nLabel: dog\n")
	_ = store.Add(ctx, "LABEL DETECTION:\nLabel: cat\n", storage.Metadata{VideoID: "other", Section: core.LabelDetection}, "other_LABEL_DETECTION")
	_ = store.Add(ctx, "other summary", storage.Metadata{VideoID: "other", Section: core.Summary}, "other_SUMMARY")

	chat := &fakeChat{}
	h := newHandler(store, chat, 0)
	h.Start(ctx, "v", "grounding")
	if _, err := h.Respond(ctx, "which animal?"); err != nil {
		t.Fatal(err)
	}

	req := chat.lastRequest()
	if req[0].Content != SystemPrompt("grounding") {
		t.Errorf("another video's summary leaked into the system prompt:\n%s", req[0].Content)
	}
	if want := "Additional relevant information:\nLABEL DETECTION:\nLabel: dog\n"; req[1].Content != want {
		t.Errorf("relevant info = %q, want %q", req[1].Content, want)
	}
}
