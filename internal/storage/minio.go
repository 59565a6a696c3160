package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"resumind/internal/config"
	"resumind/internal/logger"
	"resumind/internal/tracing"
)

var objectTracer = otel.Tracer("resumind/storage/object")

// MinIO 提供对象存储功能，所有对象存放在同一个存储桶
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// NewMinIO 创建MinIO客户端并确保存储桶存在
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("MinIO bucketName 不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{client: client, cfg: cfg, bucket: cfg.BucketName}

	if err := m.ensureBucketExists(ctx); err != nil {
		return nil, err
	}
	if cfg.ObjectExpireDays > 0 {
		if err := m.setupLifecycle(ctx, cfg.ObjectExpireDays); err != nil {
			// 生命周期规则失败不影响读写
			logger.Warn().Err(err).Str("bucket", m.bucket).Msg("设置MinIO生命周期规则失败")
		}
	}

	logger.Info().Str("endpoint", cfg.Endpoint).Str("bucket", m.bucket).Msg("MinIO客户端初始化成功")
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.cfg.Location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", m.bucket, err)
	}
	logger.Info().Str("bucket", m.bucket).Msg("已创建MinIO存储桶")
	return nil
}

// setupLifecycle 为存储桶设置过期规则
func (m *MinIO) setupLifecycle(ctx context.Context, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     "expire-resume-objects",
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, m.bucket, lc)
}

// Upload 上传对象，返回对象键
func (m *MinIO) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	ctx, span := objectTracer.Start(ctx, "MinIO.Upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("object.bucket", m.bucket),
		attribute.String("object.name", tracing.SafeKey(objectName)),
		attribute.Int64("object.size", size),
	)

	if err := ValidatePath(objectName); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return "", err
	}

	info, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStorage)
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.bucket, objectName, err)
	}
	logger.Debug().Str("object", objectName).Str("etag", info.ETag).Int64("size", info.Size).Msg("对象上传成功")
	return objectName, nil
}

// Read 读取完整对象
func (m *MinIO) Read(ctx context.Context, objectPath string) ([]byte, error) {
	rc, _, err := m.Open(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s 失败: %w", objectPath, err)
	}
	return data, nil
}

// Open 打开对象流；GetObject 是惰性的，这里用 Stat 提前暴露不存在等错误
func (m *MinIO) Open(ctx context.Context, objectPath string) (io.ReadCloser, ObjectInfo, error) {
	ctx, span := objectTracer.Start(ctx, "MinIO.Open")
	defer span.End()
	span.SetAttributes(attribute.String("object.name", tracing.SafeKey(objectPath)))

	if err := ValidatePath(objectPath); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, ObjectInfo{}, err
	}

	obj, err := m.client.GetObject(ctx, m.bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStorage)
		return nil, ObjectInfo{}, fmt.Errorf("获取对象 %s 失败: %w", objectPath, err)
	}

	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, objectPath)
		}
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStorage)
		return nil, ObjectInfo{}, fmt.Errorf("获取对象 %s 信息失败: %w", objectPath, err)
	}

	return obj, ObjectInfo{
		Path:         objectPath,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}, nil
}
