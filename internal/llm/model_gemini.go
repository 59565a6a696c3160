package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"resumind/internal/logger"
)

const defaultGeminiModel = "gemini-2.5-flash"

// geminiModels genai.Models 中用到的方法
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiOptions Gemini 模型参数
type GeminiOptions struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	JSONMode    bool
}

// GeminiChatModel 基于 google.golang.org/genai 的聊天模型
type GeminiChatModel struct {
	models geminiModels
	opts   GeminiOptions
}

var _ model.ToolCallingChatModel = (*GeminiChatModel)(nil)

// NewGeminiChatModel 创建 Gemini API 客户端
func NewGeminiChatModel(ctx context.Context, opts GeminiOptions) (*GeminiChatModel, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("Gemini API key 不能为空")
	}
	if opts.Model == "" {
		opts.Model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger.Info().Str("model", opts.Model).Msg("使用 Gemini LLM 客户端")
	return &GeminiChatModel{models: client.Models, opts: opts}, nil
}

// Generate system 消息放入 SystemInstruction，其余按角色转换为 Content
func (g *GeminiChatModel) Generate(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	cfg := &genai.GenerateContentConfig{}
	if g.opts.Temperature > 0 {
		t := g.opts.Temperature
		cfg.Temperature = &t
	}
	if g.opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.opts.MaxTokens)
	}
	if g.opts.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	var systemParts []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		text := messageText(m)
		switch m.Role {
		case schema.System:
			systemParts = append(systemParts, text)
		case schema.Assistant:
			contents = append(contents, genai.NewContentFromText(text, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}
	}
	if len(systemParts) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(systemParts, "\n"), genai.RoleUser)
	}

	resp, err := g.models.GenerateContent(ctx, g.opts.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate text: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response generated (empty candidates)")
	}

	candidate := resp.Candidates[0]
	chunks := make([]Chunk, 0, len(candidate.Content.Parts))
	for _, p := range candidate.Content.Parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		chunks = append(chunks, Chunk{Type: "text", Text: p.Text})
	}

	var result *schema.Message
	switch len(chunks) {
	case 0:
		result = &schema.Message{Role: schema.Assistant}
	case 1:
		result = schema.AssistantMessage(chunks[0].Text, nil)
	default:
		result = contentToMessage(ChunkContent(chunks...))
	}
	result.ResponseMeta = &schema.ResponseMeta{FinishReason: string(candidate.FinishReason)}
	if u := resp.UsageMetadata; u != nil {
		result.ResponseMeta.Usage = &schema.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return result, nil
}

// Stream 未实现
func (g *GeminiChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("GeminiChatModel 的 Stream 方法未实现")
}

// WithTools 分析流程不使用工具调用，返回自身
func (g *GeminiChatModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return g, nil
}
