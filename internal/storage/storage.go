package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resumind/internal/config"
	"resumind/internal/constants"
	"resumind/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 对象存储（MinIO 或 S3）
	Objects ObjectStorage

	// 键值存储（Redis、SQL 或内存）
	KV KVStore

	// 关系型数据库，未配置时为 nil
	DB *Database

	// 消息队列，未配置时为 nil
	RabbitMQ *RabbitMQ
}

// NewStorage 按配置初始化各存储组件。
// 对象存储和键值存储是必需的，数据库与消息队列失败时只记录警告。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{}
	var initErrors []string

	if cfg.Database.Enabled() {
		db, err := NewDatabase(&cfg.Database)
		if err != nil {
			initErrors = append(initErrors, fmt.Sprintf("Database: %v", err))
		} else {
			s.DB = db
		}
	}

	if cfg.RabbitMQ.Enabled() {
		mq, err := NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		} else {
			s.RabbitMQ = mq
		}
	}

	objects, err := newObjectStorage(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Objects = objects

	kv, err := s.newKVStore(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.KV = kv

	if len(initErrors) > 0 {
		logger.Warn().Str("errors", strings.Join(initErrors, "; ")).Msg("以下可选存储组件初始化失败")
	}
	return s, nil
}

func newObjectStorage(ctx context.Context, cfg *config.Config) (ObjectStorage, error) {
	switch cfg.Storage.ObjectBackend {
	case config.ObjectBackendS3:
		s3Store, err := NewS3(ctx, &cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("初始化S3失败: %w", err)
		}
		return s3Store, nil
	default:
		minioStore, err := NewMinIO(ctx, &cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("初始化MinIO失败: %w", err)
		}
		return minioStore, nil
	}
}

func (s *Storage) newKVStore(cfg *config.Config) (KVStore, error) {
	switch cfg.Storage.KVBackend {
	case config.KVBackendMemory:
		logger.Warn().Msg("使用内存键值存储，进程重启后数据丢失")
		return NewMemoryKV(), nil
	case config.KVBackendSQL:
		if s.DB == nil {
			return nil, fmt.Errorf("kv_backend=sql 但数据库未初始化")
		}
		return NewSQLKV(s.DB), nil
	default:
		r, err := NewRedisAdapter(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("初始化Redis失败: %w", err)
		}
		if ttl := config.GetDuration(cfg.Analyzer.StatusTTL, 0); ttl > 0 {
			r.SetPrefixTTL(strings.TrimSuffix(constants.KeyUploadStatus, "%s"), ttl)
		}
		return r, nil
	}
}

// Ping 检查键值存储是否可用，用于健康检查
func (s *Storage) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := s.KV.Get(ctx, "health:ping")
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.KV != nil {
		if err := s.KV.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭键值存储失败")
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭数据库连接失败")
		}
	}
}
