package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"resumind/internal/logger"
)

const (
	// DashScope 的 OpenAI 兼容接口
	openAICompatibleQwenAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenModelName       = "qwen-plus"
)

// QwenOptions 通义千问模型参数
type QwenOptions struct {
	APIKey      string
	Model       string
	APIURL      string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// JSONMode 请求 response_format=json_object
	JSONMode bool
}

// QwenChatModel 通过 OpenAI 兼容接口调用阿里云通义千问
type QwenChatModel struct {
	opts       QwenOptions
	httpClient *http.Client
}

var _ model.ToolCallingChatModel = (*QwenChatModel)(nil)

// NewQwenChatModel 创建通义千问聊天模型
func NewQwenChatModel(opts QwenOptions) (*QwenChatModel, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = defaultQwenModelName
	}
	if strings.TrimSpace(opts.APIURL) == "" {
		opts.APIURL = openAICompatibleQwenAPIURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}

	logger.Info().Str("api_url", opts.APIURL).Str("model", opts.Model).Msg("使用阿里云通义千问 LLM 客户端")

	return &QwenChatModel{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}, nil
}

type qwenMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type qwenResponseFormat struct {
	Type string `json:"type"`
}

type qwenChatRequest struct {
	Model          string              `json:"model"`
	Messages       []qwenMessage       `json:"messages"`
	Temperature    *float32            `json:"temperature,omitempty"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	ResponseFormat *qwenResponseFormat `json:"response_format,omitempty"`
}

// content 可能是字符串，也可能是 [{type, text}] 数组
type qwenResponseMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

type qwenChoice struct {
	Index        int                 `json:"index"`
	Message      qwenResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type qwenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type qwenChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []qwenChoice `json:"choices"`
	Usage   *qwenUsage   `json:"usage,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate 发送一次非流式对话请求
func (q *QwenChatModel) Generate(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	reqPayload := qwenChatRequest{
		Model:     q.opts.Model,
		Messages:  make([]qwenMessage, 0, len(messages)),
		MaxTokens: q.opts.MaxTokens,
	}
	if q.opts.Temperature > 0 {
		t := q.opts.Temperature
		reqPayload.Temperature = &t
	}
	if q.opts.JSONMode {
		reqPayload.ResponseFormat = &qwenResponseFormat{Type: "json_object"}
	}
	for _, m := range messages {
		if m == nil {
			continue
		}
		reqPayload.Messages = append(reqPayload.Messages, qwenMessage{Role: string(m.Role), Content: messageText(m)})
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, q.opts.APIURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+q.opts.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	logger.Debug().Str("model", q.opts.Model).Int("messages", len(reqPayload.Messages)).Int("body_bytes", len(jsonData)).Msg("[通义千问] 发送请求")

	httpResp, err := q.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, truncate(string(bodyBytes), 500))
	}

	var resp qwenChatResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, fmt.Errorf("API 返回错误 %s: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", truncate(string(bodyBytes), 200))
	}

	choice := resp.Choices[0]
	result := contentToMessage(choice.Message.Content)
	if choice.Message.Role != "" {
		result.Role = schema.RoleType(choice.Message.Role)
	}
	result.ResponseMeta = &schema.ResponseMeta{FinishReason: choice.FinishReason}
	if resp.Usage != nil {
		result.ResponseMeta.Usage = &schema.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	logger.Debug().Str("id", resp.ID).Str("finish_reason", choice.FinishReason).Msg("[通义千问] 收到响应")
	return result, nil
}

// Stream 未实现
func (q *QwenChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("QwenChatModel 的 Stream 方法未实现")
}

// WithTools 分析流程不使用工具调用，返回自身
func (q *QwenChatModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return q, nil
}

// messageText 合并消息中的文本，MultiContent 优先
func messageText(m *schema.Message) string {
	if len(m.MultiContent) == 0 {
		return m.Content
	}
	parts := make([]string, 0, len(m.MultiContent))
	for _, p := range m.MultiContent {
		if p.Type == schema.ChatMessagePartTypeText {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// contentToMessage 分段内容写入 MultiContent，整段文本写入 Content
func contentToMessage(c Content) *schema.Message {
	msg := &schema.Message{Role: schema.Assistant}
	if chunks := c.Chunks(); chunks != nil {
		msg.MultiContent = make([]schema.ChatMessagePart, 0, len(chunks))
		for _, ch := range chunks {
			msg.MultiContent = append(msg.MultiContent, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeText,
				Text: ch.Text,
			})
		}
		return msg
	}
	if text, ok := c.Text(); ok {
		msg.Content = text
	}
	return msg
}

// messageToContent 与 contentToMessage 相反
func messageToContent(m *schema.Message) Content {
	if m == nil {
		return Content{}
	}
	if len(m.MultiContent) > 0 {
		chunks := make([]Chunk, 0, len(m.MultiContent))
		for _, p := range m.MultiContent {
			if p.Type != schema.ChatMessagePartTypeText {
				continue
			}
			chunks = append(chunks, Chunk{Type: "text", Text: p.Text})
		}
		return ChunkContent(chunks...)
	}
	if m.Content == "" {
		return Content{}
	}
	return TextContent(m.Content)
}
