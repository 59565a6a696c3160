package analyzer

import (
	"errors"
	"fmt"
)

// 失败类别，分析流程的每一种失败都归入其中之一
var (
	ErrUploadFailed     = errors.New("upload failed")
	ErrConversionFailed = errors.New("conversion failed")
	ErrServiceFailed    = errors.New("AI service failed")
	ErrResponseShape    = errors.New("AI response missing content")
	ErrParseFailed      = errors.New("failed to parse AI response")
	ErrRecordFailed     = errors.New("failed to save record")
	ErrInvalidRequest   = errors.New("invalid request")
)

// StageError 记录失败发生的阶段。
// errors.Is / errors.As 同时能匹配失败类别 BaseErr 和底层原因 Cause
type StageError struct {
	RecordID string
	Stage    Stage
	BaseErr  error
	Cause    error
	Detail   string
}

func (e *StageError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (stage: %s): %s", e.BaseErr, e.Stage, e.Detail)
	}
	return fmt.Sprintf("%s (stage: %s)", e.BaseErr, e.Stage)
}

func (e *StageError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.BaseErr}
	}
	return []error{e.BaseErr, e.Cause}
}

func newStageError(id string, stage Stage, base error, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &StageError{RecordID: id, Stage: stage, BaseErr: base, Cause: cause, Detail: detail}
}

// StatusMessage 失败时展示给用户的唯一状态文本
func StatusMessage(err error) string {
	if err == nil {
		return ""
	}
	return "Error: " + err.Error()
}
