package processors

import (
	"fmt"
	"strings"

	"videoInsight/core"
	"videoInsight/logger"
)

// Formatter 把标注记录格式化为文本段落
type Formatter struct {
	log *logger.Logger
}

func NewFormatter(log *logger.Logger) *Formatter {
	return &Formatter{log: log.With("service", "Formatter")}
}

// Format 总是返回非空文本，格式化失败时返回 "Error processing {kind}"
func (f *Formatter) Format(kind core.SectionKind, data any) string {
	text, err := FormatSection(kind, data)
	if err != nil {
		f.log.Error("failed to format section", "section", kind.String(), "error", err)
		return fmt.Sprintf("Error processing %s", kind)
	}
	return text
}

// FormatSection 按类型格式化，panic 会被转换为错误
func FormatSection(kind core.SectionKind, data any) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("panic while formatting %s: %v", kind, r)
		}
	}()

	switch kind {
	case core.LabelDetection:
		labels, ok := data.([]core.LabelAnnotation)
		if !ok {
			return "", unexpectedType(kind, data)
		}
		return formatLabels(labels), nil
	case core.FaceDetection:
		faces, ok := data.([]core.TrackedAnnotation)
		if !ok {
			return "", unexpectedType(kind, data)
		}
		return formatTracks("FACE DETECTION:\n", "Face", faces)
	case core.PersonDetection:
		persons, ok := data.([]core.TrackedAnnotation)
		if !ok {
			return "", unexpectedType(kind, data)
		}
		return formatTracks("PERSON DETECTION:\n", "Person", persons)
	case core.ShotChangeDetection:
		shots, ok := data.([]core.ShotSegment)
		if !ok {
			return "", unexpectedType(kind, data)
		}
		return formatShots(shots), nil
	case core.ObjectTracking:
		objects, ok := data.([]core.ObjectAnnotation)
		if !ok {
			return "", unexpectedType(kind, data)
		}
		return formatObjects(objects), nil
	case core.SpeechTranscription:
		speech, ok := data.([]core.SpeechTranscriptionRecord)
		if !ok {
			return "", unexpectedType(kind, data)
		}
		return formatSpeech(speech), nil
	}
	return fmt.Sprintf("%s:\n%v", kind, data), nil
}

func unexpectedType(kind core.SectionKind, data any) error {
	return fmt.Errorf("unexpected record type %T for %s", data, kind)
}

func formatLabels(labels []core.LabelAnnotation) string {
	var b strings.Builder
	b.WriteString("LABEL DETECTION:\n")
	for _, label := range labels {
		fmt.Fprintf(&b, "Label: %s\n", label.Entity)
		for _, seg := range label.Segments {
			fmt.Fprintf(&b, "  Segment: %.2fs to %.2fs (Confidence: %.2f)\n", seg.Start, seg.End, seg.Confidence)
		}
	}
	return b.String()
}

// formatTracks 只输出每条轨迹第一个采样点的属性；没有采样点视为格式化失败
func formatTracks(header, noun string, annotations []core.TrackedAnnotation) (string, error) {
	var b strings.Builder
	b.WriteString(header)
	for _, ann := range annotations {
		for _, track := range ann.Tracks {
			fmt.Fprintf(&b, "%s detected with confidence: %.2f\n", noun, track.Confidence)
			fmt.Fprintf(&b, "  Tracked from %.2fs to %.2fs\n", track.Start, track.End)
			if len(track.Samples) == 0 {
				return "", fmt.Errorf("%s track at %.2fs has no timestamped samples", strings.ToLower(noun), track.Start)
			}
			for _, attr := range track.Samples[0].Attributes {
				fmt.Fprintf(&b, "    Attribute: %s (Confidence: %.2f)\n", attr.Name, attr.Confidence)
			}
		}
	}
	return b.String(), nil
}

func formatShots(shots []core.ShotSegment) string {
	var b strings.Builder
	b.WriteString("SHOT CHANGE DETECTION:\n")
	for i, shot := range shots {
		fmt.Fprintf(&b, "  Shot %d: %.2fs to %.2fs\n", i+1, shot.Start, shot.End)
	}
	return b.String()
}

func formatObjects(objects []core.ObjectAnnotation) string {
	var b strings.Builder
	b.WriteString("OBJECT TRACKING:\n")
	for _, obj := range objects {
		fmt.Fprintf(&b, "Tracked object: %s\n", obj.Entity)
		fmt.Fprintf(&b, "  Tracked from %.2fs to %.2fs\n", obj.Start, obj.End)
		fmt.Fprintf(&b, "  Confidence: %.2f\n", obj.Confidence)
	}
	return b.String()
}

func formatSpeech(transcriptions []core.SpeechTranscriptionRecord) string {
	var b strings.Builder
	b.WriteString("SPEECH TRANSCRIPTION:\n")
	for _, tr := range transcriptions {
		for _, alt := range tr.Alternatives {
			fmt.Fprintf(&b, "Transcript: %s\n", alt.Transcript)
			fmt.Fprintf(&b, "Confidence: %.2f\n", alt.Confidence)
			b.WriteString("Word level information:\n")
			for _, w := range alt.Words {
				fmt.Fprintf(&b, "  %.2fs - %.2fs: %s\n", w.Start, w.End, w.Word)
			}
		}
	}
	return b.String()
}
