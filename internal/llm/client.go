package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"resumind/internal/config"
	"resumind/internal/logger"
	"resumind/internal/ratelimit"
	"resumind/internal/tracing"
)

var llmTracer = otel.Tracer("resumind/llm")

// FeedbackClient AI 推理服务：传入文档引用和指令，返回聊天风格的响应信封
type FeedbackClient interface {
	Feedback(ctx context.Context, documentRef string, instructions string) (*Envelope, error)
}

// DocumentReader 按引用读取文档内容
type DocumentReader interface {
	Read(ctx context.Context, objectPath string) ([]byte, error)
}

// TextExtractor 提取文档文本
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// ChatModel 只需要非流式生成
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// EinoFeedbackClient 读取对象存储中的简历，提取文本后交给 eino 聊天模型
type EinoFeedbackClient struct {
	documents DocumentReader
	extractor TextExtractor
	model     ChatModel
	maxChars  int
}

var _ FeedbackClient = (*EinoFeedbackClient)(nil)

// NewEinoFeedbackClient maxChars<=0 表示不截断
func NewEinoFeedbackClient(documents DocumentReader, extractor TextExtractor, chatModel ChatModel, maxChars int) *EinoFeedbackClient {
	return &EinoFeedbackClient{
		documents: documents,
		extractor: extractor,
		model:     chatModel,
		maxChars:  maxChars,
	}
}

// Feedback 读取、提取、调用模型。文档读取失败和模型调用失败以 error 返回；
// 模型拒答（内容过滤）以 success:false 信封返回。
func (c *EinoFeedbackClient) Feedback(ctx context.Context, documentRef string, instructions string) (*Envelope, error) {
	ctx, span := llmTracer.Start(ctx, "llm.Feedback")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.document_ref", tracing.SafeKey(documentRef)),
		attribute.String("llm.instructions", tracing.SafePrompt(instructions)),
	)

	data, err := c.documents.Read(ctx, documentRef)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStorage)
		return nil, fmt.Errorf("读取文档 %s 失败: %w", documentRef, err)
	}

	text, err := c.extractor.Extract(ctx, documentRef, data)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeConversion)
		return nil, fmt.Errorf("提取文档文本失败: %w", err)
	}
	text = truncateRunes(text, c.maxChars)
	span.SetAttributes(
		attribute.Int("llm.document_chars", utf8.RuneCountInString(text)),
		attribute.String("llm.document_preview", tracing.SafeDocument(text)),
	)

	messages := []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(instructions + "\n\nResume:\n" + text),
	}

	start := time.Now()
	resp, err := c.model.Generate(ctx, messages)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, fmt.Errorf("调用模型失败: %w", err)
	}

	ev := logger.Debug().Str("document", documentRef).Dur("elapsed", time.Since(start))
	if resp != nil && resp.ResponseMeta != nil {
		ev = ev.Str("finish_reason", resp.ResponseMeta.FinishReason)
		if u := resp.ResponseMeta.Usage; u != nil {
			ev = ev.Int("total_tokens", u.TotalTokens)
			span.SetAttributes(attribute.Int("llm.total_tokens", u.TotalTokens))
		}
		if isFiltered(resp.ResponseMeta.FinishReason) {
			ev.Msg("模型拒绝回答")
			return Failed("response blocked by content filter"), nil
		}
	}
	ev.Msg("模型调用完成")

	return Succeeded(messageToContent(resp)), nil
}

func isFiltered(finishReason string) bool {
	switch strings.ToLower(finishReason) {
	case "content_filter", "safety", "prohibited_content", "blocklist":
		return true
	}
	return false
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// NewChatModel 按 llm.provider 创建模型；真实模型外层只套限流，不重试
func NewChatModel(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, error) {
	var (
		m   model.ToolCallingChatModel
		err error
	)
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second

	switch cfg.LLM.Provider {
	case config.LLMProviderMock:
		logger.Warn().Msg("使用 mock 模型，返回固定的示例分析结果")
		return NewMockChatModel(SampleFeedback, nil), nil
	case config.LLMProviderGemini:
		m, err = NewGeminiChatModel(ctx, GeminiOptions{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			JSONMode:    true,
		})
	case config.LLMProviderQwen, "":
		m, err = NewQwenChatModel(QwenOptions{
			APIKey:      cfg.Aliyun.APIKey,
			Model:       cfg.Aliyun.Model,
			APIURL:      cfg.Aliyun.APIURL,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     timeout,
			JSONMode:    true,
		})
	default:
		return nil, fmt.Errorf("不支持的 LLM provider: %s", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, err
	}

	return ratelimit.NewRateLimitedChatModel(m, cfg.LLM.QPM, cfg.LLM.Burst), nil
}
