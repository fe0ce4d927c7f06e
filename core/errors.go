package core

import "errors"

var (
	// ErrAnnotationTimeout 标注超过配置的时限，远端任务可能仍在运行
	ErrAnnotationTimeout = errors.New("video annotation timed out")

	ErrConversationNotStarted = errors.New("conversation not started")
	ErrAnalysisNotFound       = errors.New("video analysis not found")
	ErrEmptyVideo             = errors.New("video input is empty")
	ErrUnsupportedFileType    = errors.New("file type not allowed")
)
