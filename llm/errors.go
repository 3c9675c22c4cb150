package llm

import "errors"

// 统一的错误码，在传输层边界赋值，用于对齐 HTTP 状态、可重试性与上层处理。
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "LLM_INVALID_REQUEST"  // 请求结构错误，立即失败
	ErrUnauthorized    ErrorCode = "LLM_UNAUTHORIZED"     // 未授权或密钥失效
	ErrForbidden       ErrorCode = "LLM_FORBIDDEN"        // 权限或内容策略拒绝
	ErrRateLimited     ErrorCode = "LLM_RATE_LIMITED"     // 上游或本地限流
	ErrQuotaExceeded   ErrorCode = "LLM_QUOTA_EXCEEDED"   // 额度/配额用尽
	ErrUpstreamTimeout ErrorCode = "LLM_UPSTREAM_TIMEOUT" // 上游超时（单次尝试被中止）
	ErrUpstreamError   ErrorCode = "LLM_UPSTREAM_ERROR"   // 上游 5xx/网络错误
	ErrModelOverloaded ErrorCode = "LLM_MODEL_OVERLOADED" // 模型过载
	ErrParseResponse   ErrorCode = "LLM_PARSE_RESPONSE"   // 2xx 但响应体不可解析或无 choice
)

// Error 是类型化的 LLM 错误。Retryable 在传输层边界一次性确定，
// 重试调度器只看该标记，不做错误文案匹配。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return "[" + string(e.Code) + "] " + e.Message + ": " + e.Cause.Error()
	}
	return "[" + string(e.Code) + "] " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable 报告错误是否被传输层标记为可重试。
func IsRetryable(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Retryable
	}
	return false
}

// GetErrorCode 提取错误码，非 *Error 时返回空串。
func GetErrorCode(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsValidation 报告错误是否为请求结构错误。
func IsValidation(err error) bool {
	return GetErrorCode(err) == ErrInvalidRequest
}
