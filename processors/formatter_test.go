package processors

import (
	"strings"
	"testing"

	"videoInsight/core"
	"videoInsight/logger"
)

func TestFormatLabelExample(t *testing.T) {
	labels := []core.LabelAnnotation{{
		Entity:   "dog",
		Segments: []core.LabelSegment{{Start: 0, End: 2.5, Confidence: 0.91}},
	}}
	got, err := FormatSection(core.LabelDetection, labels)
	if err != nil {
		t.Fatalf("FormatSection: %v", err)
	}
	want := "LABEL DETECTION:\nLabel: dog\n  Segment: 0.00s to 2.50s (Confidence: 0.91)\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatAllKinds(t *testing.T) {
	tracks := []core.TrackedAnnotation{{
		Tracks: []core.Track{{
			Confidence: 0.876,
			Start:      1,
			End:        3.25,
			Samples: []core.TimestampedSample{
				{Time: 1, Attributes: []core.Attribute{{Name: "glasses", Confidence: 0.7}, {Name: "smiling", Confidence: 0.456}}},
				{Time: 2, Attributes: []core.Attribute{{Name: "ignored", Confidence: 0.1}}},
			},
		}},
	}}

	tests := []struct {
		name string
		kind core.SectionKind
		data any
		want string
	}{
		{
			name: "face",
			kind: core.FaceDetection,
			data: tracks,
			want: "FACE DETECTION:\n" +
				"Face detected with confidence: 0.88\n" +
				"  Tracked from 1.00s to 3.25s\n" +
				"    Attribute: glasses (Confidence: 0.70)\n" +
				"    Attribute: smiling (Confidence: 0.46)\n",
		},
		{
			name: "person",
			kind: core.PersonDetection,
			data: tracks,
			want: "PERSON DETECTION:\n" +
				"Person detected with confidence: 0.88\n" +
				"  Tracked from 1.00s to 3.25s\n" +
				"    Attribute: glasses (Confidence: 0.70)\n" +
				"    Attribute: smiling (Confidence: 0.46)\n",
		},
		{
			name: "shots",
			kind: core.ShotChangeDetection,
			data: []core.ShotSegment{{Start: 0, End: 4.2}, {Start: 4.2, End: 9}},
			want: "SHOT CHANGE DETECTION:\n  Shot 1: 0.00s to 4.20s\n  Shot 2: 4.20s to 9.00s\n",
		},
		{
			name: "objects",
			kind: core.ObjectTracking,
			data: []core.ObjectAnnotation{{Entity: "car", Start: 0.5, End: 1.5, Confidence: 0.8}},
			want: "OBJECT TRACKING:\nTracked object: car\n  Tracked from 0.50s to 1.50s\n  Confidence: 0.80\n",
		},
		{
			name: "speech",
			kind: core.SpeechTranscription,
			data: []core.SpeechTranscriptionRecord{{Alternatives: []core.SpeechAlternative{{
				Transcript: "hello world",
				Confidence: 0.93,
				Words:      []core.WordInfo{{Word: "hello", Start: 0, End: 0.4}, {Word: "world", Start: 0.4, End: 0.9}},
			}}}},
			want: "SPEECH TRANSCRIPTION:\nTranscript: hello world\nConfidence: 0.93\nWord level information:\n" +
				"  0.00s - 0.40s: hello\n  0.40s - 0.90s: world\n",
		},
		{
			name: "empty labels",
			kind: core.LabelDetection,
			data: []core.LabelAnnotation{},
			want: "LABEL DETECTION:\n",
		},
		{
			name: "unknown kind",
			kind: core.SectionKind("TEXT_DETECTION"),
			data: []string{"a", "b"},
			want: "TEXT_DETECTION:\n[a b]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatSection(tt.kind, tt.data)
			if err != nil {
				t.Fatalf("FormatSection: %v", err)
			}
			if got != tt.want {
				t.Errorf("got\n%q\nwant\n%q", got, tt.want)
			}
			again, _ := FormatSection(tt.kind, tt.data)
			if again != got {
				t.Error("formatting is not deterministic")
			}
		})
	}
}

func TestFormatterPlaceholderOnFailure(t *testing.T) {
	f := NewFormatter(logger.Nop())

	noSamples := []core.TrackedAnnotation{{Tracks: []core.Track{{Confidence: 0.5, Start: 0, End: 1}}}}
	if got := f.Format(core.FaceDetection, noSamples); got != "Error processing FACE_DETECTION" {
		t.Errorf("track without samples: got %q", got)
	}
	if got := f.Format(core.LabelDetection, "not labels"); got != "Error processing LABEL_DETECTION" {
		t.Errorf("wrong record type: got %q", got)
	}

	// 一个段落失败不影响其他段落
	shots := f.Format(core.ShotChangeDetection, []core.ShotSegment{{Start: 0, End: 1}})
	if !strings.HasPrefix(shots, "SHOT CHANGE DETECTION:\n") {
		t.Errorf("unexpected shots output %q", shots)
	}
}

func TestFormatNilResultNeverEmpty(t *testing.T) {
	var result *core.AnnotationResult
	f := NewFormatter(logger.Nop())
	for _, kind := range core.AnnotationKinds {
		got := f.Format(kind, result.Records(kind))
		if got == "" {
			t.Errorf("%s: empty output", kind)
		}
	}
}
