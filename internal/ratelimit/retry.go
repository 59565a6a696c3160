package ratelimit

import (
	"context"
	"time"
)

// RetryPolicy 失败后的额外重试次数和固定等待间隔。
// 零值只执行一次，不做任何重试
type RetryPolicy struct {
	MaxRetries int
	Wait       time.Duration
}

// Attempts 总尝试次数
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Do 依次执行 fn 直到成功或次数用完，返回最后一次的错误。
// onRetry 在每次重试等待之前调用，可以为 nil；等待期间 ctx 结束则返回 ctx.Err()
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error, onRetry func(attempt int, lastErr error)) error {
	var err error
	for attempt := 0; attempt < p.Attempts(); attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, err)
			}
			if p.Wait > 0 {
				timer := time.NewTimer(p.Wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}

		if err = fn(attempt); err == nil {
			return nil
		}
	}
	return err
}
