package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrMissingContent 响应中没有消息内容
var ErrMissingContent = errors.New("AI 响应缺少消息内容")

type contentKind int

const (
	contentNone contentKind = iota
	contentText
	contentChunks
)

// Chunk 分段返回的一段内容
type Chunk struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// Content 消息内容，二选一：整段文本或分段列表
type Content struct {
	kind   contentKind
	text   string
	chunks []Chunk
}

// TextContent 整段文本
func TextContent(s string) Content {
	return Content{kind: contentText, text: s}
}

// ChunkContent 分段内容
func ChunkContent(chunks ...Chunk) Content {
	return Content{kind: contentChunks, chunks: chunks}
}

// IsZero 内容缺失
func (c Content) IsZero() bool {
	return c.kind == contentNone
}

// Text 返回可解析的文本：整段文本原样返回，分段内容取第一段。
// 第二个返回值为 false 表示没有内容。
func (c Content) Text() (string, bool) {
	switch c.kind {
	case contentText:
		return c.text, true
	case contentChunks:
		if len(c.chunks) == 0 {
			return "", false
		}
		return c.chunks[0].Text, true
	default:
		return "", false
	}
}

// Chunks 分段内容，整段文本时返回 nil
func (c Content) Chunks() []Chunk {
	if c.kind != contentChunks {
		return nil
	}
	return c.chunks
}

// MarshalJSON 文本编码为字符串，分段编码为数组
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case contentText:
		return json.Marshal(c.text)
	case contentChunks:
		if c.chunks == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.chunks)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON 接受字符串、{text} 数组或 null
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = TextContent(s)
		return nil
	case data[0] == '[':
		var chunks []Chunk
		if err := json.Unmarshal(data, &chunks); err != nil {
			return err
		}
		*c = ChunkContent(chunks...)
		return nil
	default:
		return fmt.Errorf("不支持的消息内容格式: %s", truncate(string(data), 40))
	}
}

// ErrorInfo 服务端错误
type ErrorInfo struct {
	Message string `json:"message"`
}

// Message 聊天回复
type Message struct {
	Content Content `json:"content"`
}

// Envelope AI 服务的响应信封
type Envelope struct {
	Success *bool      `json:"success,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Message *Message   `json:"message,omitempty"`
}

// Succeeded 构造成功响应
func Succeeded(content Content) *Envelope {
	ok := true
	return &Envelope{Success: &ok, Message: &Message{Content: content}}
}

// Failed 构造失败响应
func Failed(message string) *Envelope {
	ok := false
	return &Envelope{Success: &ok, Error: &ErrorInfo{Message: message}}
}

// Err 显式 success:false 时返回服务错误
func (e *Envelope) Err() error {
	if e == nil || e.Success == nil || *e.Success {
		return nil
	}
	if e.Error != nil && e.Error.Message != "" {
		return errors.New(e.Error.Message)
	}
	return errors.New("AI 服务返回失败")
}

// ExtractText 取出响应文本，缺少消息或内容时返回 ErrMissingContent
func ExtractText(env *Envelope) (string, error) {
	if env == nil || env.Message == nil {
		return "", ErrMissingContent
	}
	text, ok := env.Message.Content.Text()
	if !ok {
		return "", ErrMissingContent
	}
	return text, nil
}

// truncate 按字符截断错误信息中的响应片段，不会切开多字节字符
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return truncateRunes(s, n) + "..."
}
