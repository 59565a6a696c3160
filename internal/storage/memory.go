package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryKV 进程内键值存储，用于本地开发和测试
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ KVStore = (*MemoryKV)(nil)

// NewMemoryKV 创建内存键值存储
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

// Get 获取值
func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set 写入值
func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// List 按模式列出，结果按 key 排序
func (m *MemoryKV) List(_ context.Context, pattern string, includeValues bool) ([]KVItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]KVItem, 0)
	for k, v := range m.data {
		if !MatchPattern(pattern, k) {
			continue
		}
		item := KVItem{Key: k}
		if includeValues {
			item.Value = v
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

// Close 无需释放资源
func (m *MemoryKV) Close() error {
	return nil
}
