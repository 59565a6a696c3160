package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel/attribute"

	"resumind/internal/config"
	"resumind/internal/logger"
	"resumind/internal/tracing"
)

// s3API S3 客户端中用到的方法
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 基于 aws-sdk-go-v2 的对象存储，兼容 R2 等 S3 协议服务
type S3 struct {
	client s3API
	bucket string
}

var _ ObjectStorage = (*S3)(nil)

// NewS3 加载 AWS 配置并创建客户端
func NewS3(ctx context.Context, cfg *config.S3Config) (*S3, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket 不能为空")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info().Str("bucket", cfg.Bucket).Str("region", cfg.Region).Msg("S3客户端初始化成功")
	return &S3{client: client, bucket: cfg.Bucket}, nil
}

// Upload 上传对象
func (s *S3) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	ctx, span := objectTracer.Start(ctx, "S3.Upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("object.bucket", s.bucket),
		attribute.String("object.name", tracing.SafeKey(objectName)),
		attribute.Int64("object.size", size),
	)

	if err := ValidatePath(objectName); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectName),
		Body:        reader,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStorage)
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", s.bucket, objectName, err)
	}
	return objectName, nil
}

// Read 读取完整对象
func (s *S3) Read(ctx context.Context, objectPath string) ([]byte, error) {
	rc, _, err := s.Open(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

// Open 打开对象流
func (s *S3) Open(ctx context.Context, objectPath string) (io.ReadCloser, ObjectInfo, error) {
	ctx, span := objectTracer.Start(ctx, "S3.Open")
	defer span.End()
	span.SetAttributes(attribute.String("object.name", tracing.SafeKey(objectPath)))

	if err := ValidatePath(objectPath); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, ObjectInfo{}, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, objectPath)
		}
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStorage)
		return nil, ObjectInfo{}, fmt.Errorf("failed to get object: %w", err)
	}

	info := ObjectInfo{
		Path:        objectPath,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return out.Body, info, nil
}
