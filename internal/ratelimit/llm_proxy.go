package ratelimit

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RateLimitedChatModel 调用前先从令牌桶取令牌，失败原样返回，不在这一层重试。
// 重试由分析流程按 RetryPolicy 统一控制
type RateLimitedChatModel struct {
	original model.ToolCallingChatModel
	limiter  *Limiter
}

var _ model.ToolCallingChatModel = (*RateLimitedChatModel)(nil)

// NewRateLimitedChatModel 创建限流代理，参数含义同 NewLimiter
func NewRateLimitedChatModel(original model.ToolCallingChatModel, qpm, burst int) *RateLimitedChatModel {
	return &RateLimitedChatModel{
		original: original,
		limiter:  NewLimiter(qpm, burst),
	}
}

// Generate 等待令牌后调用一次原模型
func (rl *RateLimitedChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	if err := rl.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return rl.original.Generate(ctx, messages, options...)
}

// Stream 只对建立流的调用限流
func (rl *RateLimitedChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := rl.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return rl.original.Stream(ctx, messages, options...)
}

// WithTools 绑定工具后的模型共享同一个令牌桶
func (rl *RateLimitedChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	newModel, err := rl.original.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &RateLimitedChatModel{
		original: newModel,
		limiter:  rl.limiter,
	}, nil
}
