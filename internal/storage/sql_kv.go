package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resumind/internal/storage/models"
)

// SQLKV 基于 GORM 的 KVStore 实现，兼容 mysql / postgres / sqlite
type SQLKV struct {
	db *gorm.DB
}

var _ KVStore = (*SQLKV)(nil)

// NewSQLKV 使用已迁移的数据库创建键值存储
func NewSQLKV(database *Database) *SQLKV {
	return &SQLKV{db: database.DB()}
}

// Get 获取值
func (s *SQLKV) Get(ctx context.Context, key string) (string, error) {
	var entry models.KVEntry
	err := s.db.WithContext(ctx).Where("kv_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("读取 %s 失败: %w", key, err)
	}
	return entry.Value, nil
}

// Set 写入或覆盖
func (s *SQLKV) Set(ctx context.Context, key, value string) error {
	entry := models.KVEntry{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kv_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"kv_value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("写入 %s 失败: %w", key, err)
	}
	return nil
}

// List 用 LIKE 按前缀粗筛，再用 MatchPattern 精确过滤
func (s *SQLKV) List(ctx context.Context, pattern string, includeValues bool) ([]KVItem, error) {
	query := s.db.WithContext(ctx).Model(&models.KVEntry{}).Order("kv_key asc")
	if prefix := literalPrefix(pattern); prefix != "" {
		query = query.Where("kv_key LIKE ? ESCAPE '!'", escapeLike(prefix)+"%")
	}
	if !includeValues {
		query = query.Select("kv_key")
	}

	var entries []models.KVEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("列出 %s 失败: %w", pattern, err)
	}

	items := make([]KVItem, 0, len(entries))
	for _, e := range entries {
		if !MatchPattern(pattern, e.Key) {
			continue
		}
		item := KVItem{Key: e.Key}
		if includeValues {
			item.Value = e.Value
		}
		items = append(items, item)
	}
	return items, nil
}

// Close 数据库连接由 Database 管理
func (s *SQLKV) Close() error {
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
