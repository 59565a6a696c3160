package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"resumind/internal/logger"
)

// MockResponse 单次预期响应
type MockResponse struct {
	Content string
	// Chunks 非空时以 MultiContent 返回
	Chunks []string
	Error  error
}

// MockChatModel 用于本地开发和测试的聊天模型，按顺序返回预设响应，
// 用完后重复最后一个
type MockChatModel struct {
	mu        sync.Mutex
	responses []MockResponse
	index     int
	received  [][]*schema.Message
}

var _ model.ToolCallingChatModel = (*MockChatModel)(nil)

// NewMockChatModel 创建返回固定内容的模型
func NewMockChatModel(content string, err error) *MockChatModel {
	return NewMockChatModelSequential([]MockResponse{{Content: content, Error: err}})
}

// NewMockChatModelSequential 创建按顺序返回的模型
func NewMockChatModelSequential(responses []MockResponse) *MockChatModel {
	if len(responses) == 0 {
		logger.Warn().Msg("[MockChatModel] 未配置任何响应，调用将始终返回错误")
		responses = []MockResponse{{Error: errors.New("mock model has no responses configured")}}
	}
	return &MockChatModel{responses: responses}
}

// Generate 返回下一个预设响应
func (m *MockChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	received := make([]*schema.Message, len(input))
	copy(received, input)
	m.received = append(m.received, received)

	resp := m.responses[m.index]
	if m.index < len(m.responses)-1 {
		m.index++
	}

	if resp.Error != nil {
		return nil, resp.Error
	}
	if len(resp.Chunks) > 0 {
		chunks := make([]Chunk, 0, len(resp.Chunks))
		for _, c := range resp.Chunks {
			chunks = append(chunks, Chunk{Type: "text", Text: c})
		}
		return contentToMessage(ChunkContent(chunks...)), nil
	}
	return schema.AssistantMessage(resp.Content, nil), nil
}

// Stream 未实现
func (m *MockChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("streaming not implemented in MockChatModel")
}

// WithTools 返回自身
func (m *MockChatModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

// Calls 已收到的调用次数
func (m *MockChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

// LastMessages 最近一次调用收到的消息
func (m *MockChatModel) LastMessages() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.received) == 0 {
		return nil
	}
	return m.received[len(m.received)-1]
}

// SampleFeedback provider=mock 时返回的示例分析结果
const SampleFeedback = `{
  "overall_rating": 7.5,
  "ats_compatibility": {"rating": 8, "issues": ["Avoid tables in the experience section", "Use standard section headings"]},
  "job_match": {"rating": 7, "alignment": ["Backend experience matches the role", "Cloud exposure is relevant"]},
  "formatting_suggestions": ["Keep the resume to two pages"],
  "keyword_optimization": {"missing_keywords": ["Kubernetes", "gRPC"], "suggested_additions": ["Mention container orchestration work"]},
  "strengths": ["Clear project impact", "Consistent tenure"],
  "weaknesses": ["Few quantified results"],
  "recommendations": ["Quantify achievements", "Add a skills summary"],
  "gaps": ["No leadership experience listed"]
}`
