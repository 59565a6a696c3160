package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrInvalidPath 空路径或目录形式（以 / 结尾）的路径，在访问后端之前拒绝
var ErrInvalidPath = errors.New("无效的对象路径")

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("对象不存在")

// ObjectInfo 对象元数据
type ObjectInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// Upload 上传对象，返回存储路径
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error)

	// Read 读取完整对象
	Read(ctx context.Context, objectPath string) ([]byte, error)

	// Open 流式读取对象，调用方负责 Close
	Open(ctx context.Context, objectPath string) (io.ReadCloser, ObjectInfo, error)
}

// ValidatePath 校验对象路径
func ValidatePath(objectPath string) error {
	if strings.TrimSpace(objectPath) == "" {
		return fmt.Errorf("%w: 路径为空", ErrInvalidPath)
	}
	if strings.HasSuffix(objectPath, "/") {
		return fmt.Errorf("%w: %q 是目录", ErrInvalidPath, objectPath)
	}
	return nil
}

// ObjectName 生成对象名称，例如 resumes/<id>/cv.pdf
func ObjectName(prefix, id, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "file"
	}
	return path.Join(prefix, id, base)
}

// ContentTypeFor 根据文件扩展名返回 MIME 类型
func ContentTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
