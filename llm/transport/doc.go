// 版权所有 2025 DocFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 transport 实现对生成式文本服务补全端点的单次 HTTP 调用，
并把线格式响应与失败规范化为 llm 包的类型化结果。

# 概述

HTTPTransport 负责一次 POST {baseURL}/chat/completions 调用：
构造 OpenAI 兼容的 JSON 请求体，携带 Bearer 认证与硬超时，
将首个 choice 映射为 llm.Response，将非 2xx 状态与网络失败映射为
带 Retryable 标记的 *llm.Error。重试、准入与缓存都在上层，
本包每次调用恰好发出一次网络请求。

MockTransport 完全绕过网络：按最后一条 user 消息的关键词返回
确定形状的罐装响应，并模拟 100–300ms 延迟，供测试与离线开发使用。

# 错误映射

  - 429 / 5xx / 529 → Retryable=true
  - 请求超时（context deadline）→ ErrUpstreamTimeout, Retryable=true
  - 2xx 但响应体不可解析或无 choice → ErrParseResponse, Retryable=false
  - 其余 4xx → Retryable=false
*/
package transport
