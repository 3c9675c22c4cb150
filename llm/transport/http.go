package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/docflow/internal/tlsutil"
	"github.com/BaSui01/docflow/llm"
)

// Transport 抽象一次补全调用。实现方每次调用恰好发出一次上游请求，
// 失败以 *llm.Error 规范化返回。
type Transport interface {
	Completion(ctx context.Context, req *llm.Request) (*llm.Response, error)
	Name() string
}

// Config 配置 HTTPTransport。
type Config struct {
	// ProviderName 是该 Provider 的唯一标识（用于日志与错误标注）。
	ProviderName string

	// APIKey 是 Bearer 认证密钥。
	APIKey string

	// BaseURL 是补全端点的基地址（如 "https://api.openai.com/v1"）。
	BaseURL string

	// DefaultModel 在请求未指定模型时使用。
	DefaultModel string

	// Timeout 是单次调用的硬超时，零值时默认 30s。
	Timeout time.Duration

	// EndpointPath 是补全端点路径，默认 "/chat/completions"。
	EndpointPath string

	// BuildHeaders 可选地覆盖默认请求头（默认 Bearer 认证 + JSON）。
	BuildHeaders func(req *http.Request, apiKey string)
}

// HTTPTransport 对补全端点发起单次 POST 调用并规范化结果。
type HTTPTransport struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewHTTPTransport 创建 HTTP 传输层。
func NewHTTPTransport(cfg Config, logger *zap.Logger) *HTTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai-compat"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPTransport{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "transport")),
	}
}

// Name 返回 Provider 标识。
func (t *HTTPTransport) Name() string { return t.cfg.ProviderName }

func (t *HTTPTransport) endpoint() string {
	return strings.TrimRight(t.cfg.BaseURL, "/") + t.cfg.EndpointPath
}

func (t *HTTPTransport) buildHeaders(req *http.Request) {
	if t.cfg.BuildHeaders != nil {
		t.cfg.BuildHeaders(req, t.cfg.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// Completion 发起一次非流式补全调用。
// 请求级 Timeout 优先于配置超时；超时中止本次调用并返回可重试的超时错误。
func (t *HTTPTransport) Completion(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	timeout := t.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := buildWireRequest(req, t.cfg.DefaultModel)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create completion request: %w", err)
	}
	t.buildHeaders(httpReq)

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &llm.Error{
				Code: llm.ErrUpstreamTimeout, Message: "completion call timed out after " + timeout.String(),
				HTTPStatus: http.StatusGatewayTimeout, Retryable: true, Provider: t.Name(), Cause: err,
			}
		}
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: t.Name(), Cause: err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := ReadErrorMessage(resp.Body)
		t.logger.Warn("upstream returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("model", body.Model),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil, MapHTTPError(resp.StatusCode, msg, t.Name())
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		// 2xx 但响应体不可解析：不重试，直接上浮给调用方。
		return nil, &llm.Error{
			Code: llm.ErrParseResponse, Message: "undecodable completion body",
			HTTPStatus: resp.StatusCode, Provider: t.Name(), Cause: err,
		}
	}
	if len(wire.Choices) == 0 {
		return nil, &llm.Error{
			Code: llm.ErrParseResponse, Message: "completion response has no choices",
			HTTPStatus: resp.StatusCode, Provider: t.Name(),
		}
	}

	choice := wire.Choices[0]
	out := &llm.Response{
		ID:           wire.ID,
		Model:        wire.Model,
		Content:      choice.Message.Content,
		Role:         llm.RoleAssistant,
		FinishReason: choice.FinishReason,
	}
	if out.Model == "" {
		out.Model = body.Model
	}
	if wire.Usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		}
	}
	if wire.Created != 0 {
		out.Created = time.Unix(wire.Created, 0)
	} else {
		out.Created = time.Now()
	}

	t.logger.Debug("completion ok",
		zap.String("model", out.Model),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
