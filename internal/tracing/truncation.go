package tracing

import (
	"strings"
)

const (
	// DefaultMaxLength 默认最大属性长度
	DefaultMaxLength = 200

	// MaxSQLLength SQL语句最大长度
	MaxSQLLength = 500

	// MaxKeyLength 键值存储 key 最大长度
	MaxKeyLength = 100

	// MaxPromptLength 提示词最大长度
	MaxPromptLength = 300

	// MaxDocumentLength 简历内容最大长度
	MaxDocumentLength = 150
)

// 需要掩码处理的属性名关键字
var piiKeywords = []string{
	"email", "phone", "password", "address", "name", "secret", "token", "api_key",
	"身份证", "地址", "姓名",
}

// SafeAttributeValue 属性名命中敏感关键字时掩码，否则按长度截断
func SafeAttributeValue(name string, value string, maxLength int) string {
	lowerName := strings.ToLower(name)
	for _, keyword := range piiKeywords {
		if strings.Contains(lowerName, keyword) {
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskPII 对个人敏感信息进行掩码处理
//
//	"张三" -> "张*"，"王小明" -> "王*明"，"13812345678" -> "13*******78"
func MaskPII(value string) string {
	if value == "" {
		return ""
	}

	runes := []rune(value)
	n := len(runes)
	switch {
	case n == 1:
		return "*"
	case n == 2:
		return string(runes[0]) + "*"
	case n <= 4:
		return string(runes[0]) + strings.Repeat("*", n-2) + string(runes[n-1])
	}
	return string(runes[:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
}

// TruncateString 保留首尾，中间用 ... 连接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeSQL 安全处理SQL语句
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafeKey 安全处理键值存储的 key
func SafeKey(key string) string {
	return TruncateString(key, MaxKeyLength)
}

// SafePrompt 安全处理提示词
func SafePrompt(prompt string) string {
	return TruncateString(prompt, MaxPromptLength)
}

// SafeDocument 安全处理简历内容
func SafeDocument(content string) string {
	return TruncateString(content, MaxDocumentLength)
}
