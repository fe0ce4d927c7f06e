package core

import (
	"fmt"
	"time"
)

// ---------------- Sections ----------------

// SectionKind 存储的分析文本类别
type SectionKind string

const (
	LabelDetection      SectionKind = "LABEL_DETECTION"
	FaceDetection       SectionKind = "FACE_DETECTION"
	PersonDetection     SectionKind = "PERSON_DETECTION"
	ShotChangeDetection SectionKind = "SHOT_CHANGE_DETECTION"
	ObjectTracking      SectionKind = "OBJECT_TRACKING"
	SpeechTranscription SectionKind = "SPEECH_TRANSCRIPTION"
	Summary             SectionKind = "SUMMARY"
)

// AnnotationKinds 标注器产出的六类，按处理顺序
var AnnotationKinds = []SectionKind{
	LabelDetection,
	FaceDetection,
	PersonDetection,
	ShotChangeDetection,
	ObjectTracking,
	SpeechTranscription,
}

func (k SectionKind) String() string { return string(k) }

// Valid 是否为已知类别
func (k SectionKind) Valid() bool {
	switch k {
	case LabelDetection, FaceDetection, PersonDetection, ShotChangeDetection,
		ObjectTracking, SpeechTranscription, Summary:
		return true
	}
	return false
}

// SectionKey 段落的存储键：{video_id}_{section_kind}
func SectionKey(videoID string, kind SectionKind) string {
	return fmt.Sprintf("%s_%s", videoID, kind)
}

// AnalysisSection 单个视频的一段格式化文本
type AnalysisSection struct {
	VideoID string      `json:"video_id"`
	Kind    SectionKind `json:"section"`
	Text    string      `json:"text"`
}

func (s AnalysisSection) Key() string { return SectionKey(s.VideoID, s.Kind) }

// ---------------- Annotation records ----------------

// AnnotationResult 标注器返回的六类有序记录，时间单位为秒
type AnnotationResult struct {
	Labels  []LabelAnnotation           `json:"labels"`
	Faces   []TrackedAnnotation         `json:"faces"`
	Persons []TrackedAnnotation         `json:"persons"`
	Shots   []ShotSegment               `json:"shots"`
	Objects []ObjectAnnotation          `json:"objects"`
	Speech  []SpeechTranscriptionRecord `json:"speech"`
}

// Records 返回某类的原始记录，非标注类别返回 nil
func (r *AnnotationResult) Records(kind SectionKind) any {
	if r == nil {
		return nil
	}
	switch kind {
	case LabelDetection:
		return r.Labels
	case FaceDetection:
		return r.Faces
	case PersonDetection:
		return r.Persons
	case ShotChangeDetection:
		return r.Shots
	case ObjectTracking:
		return r.Objects
	case SpeechTranscription:
		return r.Speech
	}
	return nil
}

type LabelAnnotation struct {
	Entity   string         `json:"entity"`
	Segments []LabelSegment `json:"segments"`
}

type LabelSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// TrackedAnnotation 人脸或人物检测，由若干轨迹组成
type TrackedAnnotation struct {
	Tracks []Track `json:"tracks"`
}

type Track struct {
	Confidence float64             `json:"confidence"`
	Start      float64             `json:"start"`
	End        float64             `json:"end"`
	Samples    []TimestampedSample `json:"samples"`
}

type TimestampedSample struct {
	Time       float64     `json:"time"`
	Attributes []Attribute `json:"attributes"`
}

type Attribute struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type ShotSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type ObjectAnnotation struct {
	Entity     string  `json:"entity"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// SpeechTranscriptionRecord 一段语音转写及其候选结果
type SpeechTranscriptionRecord struct {
	Alternatives []SpeechAlternative `json:"alternatives"`
}

type SpeechAlternative struct {
	Transcript string     `json:"transcript"`
	Confidence float64    `json:"confidence"`
	Words      []WordInfo `json:"words"`
}

type WordInfo struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ---------------- Conversation ----------------

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage 聊天请求中的一条消息，对话轮次复用同一结构
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ConversationTurn = ChatMessage

// SessionSnapshot 会话的持久化形式
type SessionSnapshot struct {
	VideoID      string             `json:"video_id"`
	SystemPrompt string             `json:"system_prompt"`
	Turns        []ConversationTurn `json:"turns"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ---------------- API payloads ----------------

type AnalyzeResponse struct {
	VideoID string `json:"video_id"`
	Result  string `json:"result"`
}

type AnalyzeYouTubeRequest struct {
	URL string `json:"url"`
}

type StartConversationRequest struct {
	VideoID  string `json:"video_id"`
	SeedText string `json:"seed_text"`
}

type ConversationRequest struct {
	VideoID   string `json:"video_id"`
	UserInput string `json:"user_input"`
}

type ConversationResponse struct {
	Response string `json:"response"`
}

type HistoryResponse struct {
	VideoID string             `json:"video_id"`
	Turns   []ConversationTurn `json:"turns"`
}

// HealthStatus 关键检查全部通过时为 "ok"，否则为 "degraded"
type HealthStatus struct {
	Status    string                 `json:"status"`
	Store     string                 `json:"store"`
	Sessions  string                 `json:"sessions"`
	ChatModel string                 `json:"chat_model"`
	Checks    map[string]HealthCheck `json:"checks,omitempty"`
	System    SystemInfo             `json:"system"`
	Timestamp time.Time              `json:"timestamp"`
}

// HealthCheck 单项依赖的检查结果
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency int64  `json:"latency_ms"`
}

type SystemInfo struct {
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
}
