package annotator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"videoInsight/core"
	"videoInsight/logger"
)

func TestBuildRequest(t *testing.T) {
	req := BuildRequest("en-US")
	if len(req.Features) != 6 {
		t.Fatalf("features = %v", req.Features)
	}
	want := []vipb.Feature{
		vipb.Feature_LABEL_DETECTION,
		vipb.Feature_FACE_DETECTION,
		vipb.Feature_PERSON_DETECTION,
		vipb.Feature_SHOT_CHANGE_DETECTION,
		vipb.Feature_OBJECT_TRACKING,
		vipb.Feature_SPEECH_TRANSCRIPTION,
	}
	for i, f := range want {
		if req.Features[i] != f {
			t.Errorf("feature %d = %v, want %v", i, req.Features[i], f)
		}
	}
	vc := req.GetVideoContext()
	if !vc.GetFaceDetectionConfig().GetIncludeAttributes() || !vc.GetFaceDetectionConfig().GetIncludeBoundingBoxes() {
		t.Error("face config missing attributes or bounding boxes")
	}
	if !vc.GetPersonDetectionConfig().GetIncludePoseLandmarks() {
		t.Error("person config missing pose landmarks")
	}
	sc := vc.GetSpeechTranscriptionConfig()
	if sc.GetLanguageCode() != "en-US" || !sc.GetEnableAutomaticPunctuation() {
		t.Errorf("speech config = %+v", sc)
	}
}

func TestRetryTransient(t *testing.T) {
	ctx := context.Background()
	log := logger.Nop()

	calls := 0
	out, err := retryTransient(ctx, log, 3, time.Millisecond, func() (string, error) {
		calls++
		if calls < 3 {
			return "", status.Error(codes.Unavailable, "try again")
		}
		return "ok", nil
	})
	if err != nil || out != "ok" || calls != 3 {
		t.Errorf("out=%q err=%v calls=%d", out, err, calls)
	}

	calls = 0
	_, err = retryTransient(ctx, log, 3, time.Millisecond, func() (string, error) {
		calls++
		return "", status.Error(codes.InvalidArgument, "bad video")
	})
	if status.Code(err) != codes.InvalidArgument || calls != 1 {
		t.Errorf("permanent error retried: err=%v calls=%d", err, calls)
	}

	calls = 0
	_, err = retryTransient(ctx, log, 2, time.Millisecond, func() (string, error) {
		calls++
		return "", status.Error(codes.ResourceExhausted, "quota")
	})
	if status.Code(err) != codes.ResourceExhausted || calls != 3 {
		t.Errorf("exhausted retries: err=%v calls=%d", err, calls)
	}
}

func TestClassifyTimeout(t *testing.T) {
	a := &GCPAnnotator{log: logger.Nop(), opts: Options{Timeout: time.Millisecond}}
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := a.classify(ctx, status.Error(codes.DeadlineExceeded, "deadline"), "wait")
	if !errors.Is(err, core.ErrAnnotationTimeout) {
		t.Errorf("timeout not mapped: %v", err)
	}
	err = a.classify(context.Background(), status.Error(codes.PermissionDenied, "no"), "submit")
	if errors.Is(err, core.ErrAnnotationTimeout) {
		t.Errorf("non-timeout mapped to timeout: %v", err)
	}
}

func TestClientOptions(t *testing.T) {
	if opts := ClientOptions("  "); opts != nil {
		t.Errorf("empty creds should yield no options: %v", opts)
	}
	if opts := ClientOptions(`{"type":"service_account"}`); len(opts) != 1 {
		t.Errorf("json creds options = %d", len(opts))
	}
	if opts := ClientOptions("/path/key.json"); len(opts) != 1 {
		t.Errorf("file creds options = %d", len(opts))
	}
}

func TestVideoSourceValidate(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.mp4")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := FromFile(empty).Validate(); !errors.Is(err, core.ErrEmptyVideo) {
		t.Errorf("empty file: %v", err)
	}
	if err := FromFile(filepath.Join(dir, "missing.mp4")).Validate(); err == nil {
		t.Error("missing file accepted")
	}
	if err := FromBytes(nil).Validate(); !errors.Is(err, core.ErrEmptyVideo) {
		t.Errorf("empty bytes: %v", err)
	}
	if err := FromURI("https://example.com/a.mp4").Validate(); err == nil {
		t.Error("non-gs uri accepted")
	}
	if err := FromURI("gs://bucket/a.mp4").Validate(); err != nil {
		t.Errorf("gs uri: %v", err)
	}
}

func TestUnavailableAnnotator(t *testing.T) {
	cause := errors.New("no credentials")
	_, err := Unavailable{Err: cause}.Annotate(context.Background(), FromBytes([]byte("x")))
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v", err)
	}
}
