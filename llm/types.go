package llm

import (
	"strconv"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 表示一条不可变的对话消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage 创建 system 消息。
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage 创建 user 消息。
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage 创建 assistant 消息。
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Request 表示一次规范化的补全请求。
// Stream 恒为 false 写入线格式；本核心不提供流式路径。
type Request struct {
	TraceID          string        `json:"trace_id,omitempty"`
	Model            string        `json:"model"`
	Messages         []Message     `json:"messages"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Temperature      float32       `json:"temperature,omitempty"`
	TopP             float32       `json:"top_p,omitempty"`
	FrequencyPenalty float32       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float32       `json:"presence_penalty,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
	Stream           bool          `json:"stream"`
	Timeout          time.Duration `json:"timeout,omitempty"`

	// BypassConcurrency 跳过客户端级准入控制。
	// 批量路径内部使用：批次自带一次性信号量，避免双重排队。
	BypassConcurrency bool `json:"-"`
}

// Validate 校验请求结构：messages 非空，角色合法，内容非空。
// 结构性错误立即失败且不会被重试。
func (r *Request) Validate() error {
	if r == nil {
		return &Error{Code: ErrInvalidRequest, Message: "request is nil"}
	}
	if len(r.Messages) == 0 {
		return &Error{Code: ErrInvalidRequest, Message: "request has no messages"}
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return &Error{Code: ErrInvalidRequest, Message: "message " + strconv.Itoa(i) + " has invalid role: " + string(m.Role)}
		}
		if m.Content == "" {
			return &Error{Code: ErrInvalidRequest, Message: "message " + strconv.Itoa(i) + " has empty content"}
		}
	}
	return nil
}

// LastUserContent 返回最后一条 user 消息的内容，不存在时返回空串。
// Mock 传输层与缓存键生成都以此为“本次请求的输入文本”。
func (r *Request) LastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Usage token 用量统计。
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Response 表示规范化后的补全响应，与 Provider 线格式无关。
type Response struct {
	ID           string    `json:"id,omitempty"`
	Model        string    `json:"model"`
	Content      string    `json:"content"`
	Role         Role      `json:"role"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Usage        Usage     `json:"usage,omitempty"`
	Created      time.Time `json:"created,omitempty"`
}
