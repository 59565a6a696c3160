package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resumind/internal/config"
	"resumind/internal/tracing"
)

var redisTracer = otel.Tracer("resumind/storage/redis")

// 按 key 前缀的采样率；redisotel 已经为每条命令产生 span，这里只补充业务层 span
var redisKeySamplingRates = map[string]float64{
	"resume:":        1.0,
	"upload_status:": 0.1,
}

var (
	rnd      = rand.New(rand.NewSource(time.Now().UnixNano()))
	rndMutex sync.Mutex
)

func shouldSampleRedisOp(key string) bool {
	if key == "" {
		return false
	}
	for prefix, rate := range redisKeySamplingRates {
		if strings.HasPrefix(key, prefix) {
			return randFloat() < rate
		}
	}
	return randFloat() < 0.05
}

func randFloat() float64 {
	rndMutex.Lock()
	defer rndMutex.Unlock()
	return rnd.Float64()
}

// Redis 基于 go-redis 的 KVStore 实现
type Redis struct {
	Client redis.UniversalClient
	config *config.RedisConfig
	// ttlByPrefix 按前缀设置过期时间，未命中的 key 永不过期
	ttlByPrefix map[string]time.Duration
}

var _ KVStore = (*Redis)(nil)

// NewRedisAdapter 创建 Redis 连接并挂载 OpenTelemetry 钩子
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	})

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return NewRedisWithClient(client, cfg), nil
}

// NewRedisWithClient 使用已有客户端构造（测试或复用连接时使用）
func NewRedisWithClient(client redis.UniversalClient, cfg *config.RedisConfig) *Redis {
	if cfg == nil {
		cfg = &config.RedisConfig{}
	}
	return &Redis{Client: client, config: cfg, ttlByPrefix: map[string]time.Duration{}}
}

// SetPrefixTTL 为指定前缀的 key 设置过期时间
func (r *Redis) SetPrefixTTL(prefix string, ttl time.Duration) {
	r.ttlByPrefix[prefix] = ttl
}

func (r *Redis) ttlFor(key string) time.Duration {
	for prefix, ttl := range r.ttlByPrefix {
		if strings.HasPrefix(key, prefix) {
			return ttl
		}
	}
	return 0
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// Get 获取键的值
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Get", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()
		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "GET"),
			attribute.String("db.redis.key", tracing.SafeKey(key)),
		)
	}

	val, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		if span != nil {
			span.SetStatus(codes.Ok, "key not found")
			span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
		}
		return "", ErrNotFound
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeKV)
		return "", fmt.Errorf("读取 %s 失败: %w", key, err)
	}

	if span != nil {
		span.SetAttributes(
			attribute.Bool("db.redis.key_exists", true),
			attribute.Int("db.redis.value_length", len(val)),
		)
	}
	return val, nil
}

// Set 设置键的值
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	expiration := r.ttlFor(key)

	var span trace.Span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Set", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()
		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "SET"),
			attribute.String("db.redis.key", tracing.SafeKey(key)),
			attribute.Int("db.redis.value_length", len(value)),
		)
		if expiration > 0 {
			span.SetAttributes(attribute.Int64("db.redis.expiration_ms", expiration.Milliseconds()))
		}
	}

	if err := r.Client.Set(ctx, key, value, expiration).Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeKV)
		return fmt.Errorf("写入 %s 失败: %w", key, err)
	}
	return nil
}

// List 通过 SCAN 遍历匹配的 key，includeValues 时再用 MGET 批量取值
func (r *Redis) List(ctx context.Context, pattern string, includeValues bool) ([]KVItem, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}

	ctx, span := redisTracer.Start(ctx, "Redis.List", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.redis.pattern", tracing.SafeKey(pattern)),
			attribute.Bool("db.redis.include_values", includeValues),
		))
	defer span.End()

	count := r.config.ScanCount
	if count <= 0 {
		count = 100
	}

	keys := make([]string, 0)
	seen := make(map[string]struct{})
	iter := r.Client.Scan(ctx, 0, redisGlob(pattern), count).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		// SCAN 可能返回重复 key
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeKV)
		return nil, fmt.Errorf("SCAN %s 失败: %w", pattern, err)
	}

	items := make([]KVItem, 0, len(keys))
	if !includeValues || len(keys) == 0 {
		for _, k := range keys {
			items = append(items, KVItem{Key: k})
		}
		span.SetAttributes(attribute.Int("db.redis.key_count", len(items)))
		return items, nil
	}

	vals, err := r.Client.MGet(ctx, keys...).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeKV)
		return nil, fmt.Errorf("MGET 失败: %w", err)
	}
	for i, k := range keys {
		// 在 SCAN 和 MGET 之间被删除的 key 跳过
		s, ok := vals[i].(string)
		if !ok {
			continue
		}
		items = append(items, KVItem{Key: k, Value: s})
	}
	span.SetAttributes(attribute.Int("db.redis.key_count", len(items)))
	return items, nil
}

// redisGlob 将模式转换为 Redis glob，只保留 * 的通配含义
func redisGlob(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
