package core

import "testing"

func TestRecordsByKind(t *testing.T) {
	r := &AnnotationResult{
		Labels: []LabelAnnotation{{Entity: "dog"}},
		Speech: []SpeechTranscriptionRecord{{Alternatives: []SpeechAlternative{{Transcript: "hello"}}}},
	}

	speech, ok := r.Records(SpeechTranscription).([]SpeechTranscriptionRecord)
	if !ok || len(speech) != 1 || speech[0].Alternatives[0].Transcript != "hello" {
		t.Fatalf("speech records = %#v", r.Records(SpeechTranscription))
	}
	if labels, ok := r.Records(LabelDetection).([]LabelAnnotation); !ok || labels[0].Entity != "dog" {
		t.Errorf("label records = %#v", r.Records(LabelDetection))
	}
	if r.Records(Summary) != nil {
		t.Error("summary is not an annotation kind")
	}

	var empty *AnnotationResult
	if empty.Records(SpeechTranscription) != nil {
		t.Error("nil result should have no records")
	}
}

func TestSectionKeys(t *testing.T) {
	if got := SectionKey("video_1", SpeechTranscription); got != "video_1_SPEECH_TRANSCRIPTION" {
		t.Errorf("key = %q", got)
	}
	for _, k := range AnnotationKinds {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if SectionKind("OTHER").Valid() {
		t.Error("unknown kind reported valid")
	}
}
