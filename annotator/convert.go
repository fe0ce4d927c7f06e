package annotator

import (
	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"
	"google.golang.org/protobuf/types/known/durationpb"

	"videoInsight/core"
)

// ConvertResponse 把 API 响应的第一个结果转换为领域记录，顺序保持不变
func ConvertResponse(resp *vipb.AnnotateVideoResponse) *core.AnnotationResult {
	out := &core.AnnotationResult{}
	if resp == nil || len(resp.GetAnnotationResults()) == 0 || resp.GetAnnotationResults()[0] == nil {
		return out
	}
	ar := resp.GetAnnotationResults()[0]

	for _, la := range ar.GetSegmentLabelAnnotations() {
		if la == nil {
			continue
		}
		label := core.LabelAnnotation{Entity: la.GetEntity().GetDescription()}
		for _, seg := range la.GetSegments() {
			label.Segments = append(label.Segments, core.LabelSegment{
				Start:      durToSec(seg.GetSegment().GetStartTimeOffset()),
				End:        durToSec(seg.GetSegment().GetEndTimeOffset()),
				Confidence: float64(seg.GetConfidence()),
			})
		}
		out.Labels = append(out.Labels, label)
	}

	for _, fa := range ar.GetFaceDetectionAnnotations() {
		out.Faces = append(out.Faces, core.TrackedAnnotation{Tracks: convertTracks(fa.GetTracks())})
	}
	for _, pa := range ar.GetPersonDetectionAnnotations() {
		out.Persons = append(out.Persons, core.TrackedAnnotation{Tracks: convertTracks(pa.GetTracks())})
	}

	for _, shot := range ar.GetShotAnnotations() {
		out.Shots = append(out.Shots, core.ShotSegment{
			Start: durToSec(shot.GetStartTimeOffset()),
			End:   durToSec(shot.GetEndTimeOffset()),
		})
	}

	for _, obj := range ar.GetObjectAnnotations() {
		out.Objects = append(out.Objects, core.ObjectAnnotation{
			Entity:     obj.GetEntity().GetDescription(),
			Start:      durToSec(obj.GetSegment().GetStartTimeOffset()),
			End:        durToSec(obj.GetSegment().GetEndTimeOffset()),
			Confidence: float64(obj.GetConfidence()),
		})
	}

	for _, st := range ar.GetSpeechTranscriptions() {
		tr := core.SpeechTranscriptionRecord{}
		for _, alt := range st.GetAlternatives() {
			a := core.SpeechAlternative{
				Transcript: alt.GetTranscript(),
				Confidence: float64(alt.GetConfidence()),
			}
			for _, w := range alt.GetWords() {
				a.Words = append(a.Words, core.WordInfo{
					Word:  w.GetWord(),
					Start: durToSec(w.GetStartTime()),
					End:   durToSec(w.GetEndTime()),
				})
			}
			tr.Alternatives = append(tr.Alternatives, a)
		}
		out.Speech = append(out.Speech, tr)
	}
	return out
}

func convertTracks(tracks []*vipb.Track) []core.Track {
	out := make([]core.Track, 0, len(tracks))
	for _, t := range tracks {
		track := core.Track{
			Confidence: float64(t.GetConfidence()),
			Start:      durToSec(t.GetSegment().GetStartTimeOffset()),
			End:        durToSec(t.GetSegment().GetEndTimeOffset()),
		}
		for _, obj := range t.GetTimestampedObjects() {
			sample := core.TimestampedSample{Time: durToSec(obj.GetTimeOffset())}
			for _, attr := range obj.GetAttributes() {
				sample.Attributes = append(sample.Attributes, core.Attribute{
					Name:       attr.GetName(),
					Confidence: float64(attr.GetConfidence()),
				})
			}
			track.Samples = append(track.Samples, sample)
		}
		out = append(out, track)
	}
	return out
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}
