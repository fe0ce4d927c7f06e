package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	kv := sanitizeKVs([]interface{}{"video_id", "video_1", "api_key", "sk-123", "dangling"})
	if len(kv) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(kv))
	}
	if kv[1] != "video_1" {
		t.Errorf("plain value changed: %v", kv[1])
	}
	if kv[3] != "[REDACTED]" {
		t.Errorf("api_key not redacted: %v", kv[3])
	}
	if kv[4] != "dangling" {
		t.Errorf("odd trailing key dropped: %v", kv[4])
	}
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod"} {
		l, err := New(mode)
		if err != nil {
			t.Fatalf("New(%q) failed: %v", mode, err)
		}
		l.With("service", "test").Debug("ok")
	}
	Nop().Info("discarded", "k", "v")
}

func TestSanitizeKVsLeavesInputUntouched(t *testing.T) {
	in := []interface{}{"postgres_dsn", "postgres://u:p@db/x", "GOOGLE_APPLICATION_CREDENTIALS", "/keys/sa.json"}
	out := sanitizeKVs(in)
	if out[1] != "[REDACTED]" || out[3] != "[REDACTED]" {
		t.Errorf("secrets leaked: %v", out)
	}
	if in[1] != "postgres://u:p@db/x" {
		t.Errorf("caller slice mutated: %v", in)
	}
}
