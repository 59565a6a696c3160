package constants

import "fmt"

// 键值存储中的 Key 格式
const (
	// ResumeKeyPrefix 简历记录前缀
	ResumeKeyPrefix = "resume:"
	// KeyResume 简历记录 (STRING, JSON)
	// 格式: resume:{id}
	KeyResume = ResumeKeyPrefix + "%s"
	// ResumeListPattern 列表页使用的通配模式
	ResumeListPattern = ResumeKeyPrefix + "*"

	// KeyUploadStatus 上传分析进度 (STRING)
	// 格式: upload_status:{id}
	KeyUploadStatus = "upload_status:%s"
)

// 对象存储路径前缀
const (
	ResumeObjectPrefix = "resumes"
	ImageObjectPrefix  = "images"
)

// 事件
const (
	// EventResumeAnalyzed 分析完成事件
	EventResumeAnalyzed = "resume.analyzed"
	// AggregateResume 事件聚合类型
	AggregateResume = "resume"
)

// ResumeKey 返回记录的完整 key
func ResumeKey(id string) string {
	return fmt.Sprintf(KeyResume, id)
}

// UploadStatusKey 返回状态 key
func UploadStatusKey(id string) string {
	return fmt.Sprintf(KeyUploadStatus, id)
}
