package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter 令牌桶限流器：按每分钟请求数匀速补充令牌，最多积攒 burst 个
type Limiter struct {
	mu     sync.Mutex
	rate   float64 // 每秒补充的令牌数
	burst  float64
	tokens float64
	last   time.Time
}

// NewLimiter qpm<=0 时按 60 处理；burst<=0 时取 qpm 的一半，至少为 1
func NewLimiter(qpm, burst int) *Limiter {
	if qpm <= 0 {
		qpm = 60
	}
	if burst <= 0 {
		burst = qpm / 2
		if burst <= 0 {
			burst = 1
		}
	}
	return &Limiter{
		rate:   float64(qpm) / 60.0,
		burst:  float64(burst),
		tokens: float64(burst), // 初始填满
		last:   time.Now(),
	}
}

// advance 按流逝时间补充令牌，调用方持有锁
func (l *Limiter) advance(now time.Time) {
	if elapsed := now.Sub(l.last).Seconds(); elapsed > 0 {
		l.tokens += elapsed * l.rate
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
	}
	l.last = now
}

// Allow 非阻塞地尝试取一个令牌
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.advance(time.Now())
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// Wait 阻塞到拿到令牌；ctx 结束时返回 ctx.Err() 且不消耗令牌
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		l.advance(time.Now())
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		delay := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
