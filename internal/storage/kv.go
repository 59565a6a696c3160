package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound key 不存在
var ErrNotFound = errors.New("key不存在")

// KVItem List 返回的一项；includeValues=false 时 Value 为空
type KVItem struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// KVStore 键值存储接口
type KVStore interface {
	// Get 获取值，不存在时返回 ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set 写入值，覆盖已有值
	Set(ctx context.Context, key, value string) error

	// List 按通配模式列出 key，* 匹配任意字符序列
	List(ctx context.Context, pattern string, includeValues bool) ([]KVItem, error)

	// Close 释放连接
	Close() error
}

// MatchPattern 判断 key 是否匹配模式。模式中只有 * 是通配符，匹配任意长度（含 0）的字符序列。
func MatchPattern(pattern, key string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == key
	}

	if !strings.HasPrefix(key, parts[0]) {
		return false
	}
	rest := key[len(parts[0]):]

	last := parts[len(parts)-1]
	middle := parts[1 : len(parts)-1]
	for _, p := range middle {
		idx := strings.Index(rest, p)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(p):]
	}
	return len(rest) >= len(last) && strings.HasSuffix(rest, last)
}

// literalPrefix 返回模式中第一个 * 之前的部分
func literalPrefix(pattern string) string {
	if i := strings.IndexByte(pattern, '*'); i >= 0 {
		return pattern[:i]
	}
	return pattern
}
