package transport

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/docflow/llm"
	"github.com/BaSui01/docflow/llm/tokenizer"
)

// 罐装响应模板。内容形状固定，测试可以直接对其断言。
const (
	mockMetadataStub = `{
  "clientName": "Acme Holdings LLC",
  "date": "2024-03-15",
  "docType": "engagement letter",
  "confidence": 0.92,
  "snippets": ["Re: Engagement of services for Acme Holdings LLC", "Dated March 15, 2024"]
}`
	mockClassifyStub = `{"docType": "correspondence", "confidence": 0.88}`
	mockSummaryStub  = "The document is a two-page client engagement letter describing scope of services, fee arrangements and signature requirements."
	mockGenericStub  = "Acknowledged. The request has been processed by the mock provider."
)

// MockTransport 完全绕过网络的确定性传输层。
// 按最后一条 user 消息的关键词选择罐装响应，模拟 100–300ms 延迟。
type MockTransport struct {
	defaultModel string
	logger       *zap.Logger

	// Latency 可选地覆盖模拟延迟（按请求返回），用于测试中
	// 构造"后提交先完成"的乱序完成场景。
	Latency func(req *llm.Request) time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockTransport 创建 mock 传输层。
func NewMockTransport(defaultModel string, logger *zap.Logger) *MockTransport {
	if defaultModel == "" {
		defaultModel = "mock-model"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockTransport{
		defaultModel: defaultModel,
		logger:       logger.With(zap.String("component", "mock_transport")),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name 返回 Provider 标识。
func (m *MockTransport) Name() string { return "mock" }

func (m *MockTransport) delay(req *llm.Request) time.Duration {
	if m.Latency != nil {
		return m.Latency(req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return 100*time.Millisecond + time.Duration(m.rng.Intn(200))*time.Millisecond
}

// Completion 返回按关键词选择的罐装响应。
func (m *MockTransport) Completion(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	select {
	case <-time.After(m.delay(req)):
	case <-ctx.Done():
		return nil, &llm.Error{
			Code: llm.ErrUpstreamTimeout, Message: "mock completion canceled",
			Retryable: true, Provider: m.Name(), Cause: ctx.Err(),
		}
	}

	model := req.Model
	if model == "" {
		model = m.defaultModel
	}

	prompt := strings.ToLower(req.LastUserContent())
	var content string
	switch {
	case strings.Contains(prompt, "metadata") || strings.Contains(prompt, "extract"):
		content = mockMetadataStub
	case strings.Contains(prompt, "classify") || strings.Contains(prompt, "type"):
		content = mockClassifyStub
	case strings.Contains(prompt, "summarize"):
		content = mockSummaryStub
	default:
		content = mockGenericStub
	}

	tok := tokenizer.ForModel(model)
	promptTexts := make([]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		promptTexts = append(promptTexts, msg.Content)
	}
	promptTokens := tokenizer.CountMessages(tok, promptTexts...)
	completionTokens := tokenizer.CountMessages(tok, content)

	return &llm.Response{
		ID:           "mock-" + uuid.NewString(),
		Model:        model,
		Content:      content,
		Role:         llm.RoleAssistant,
		FinishReason: "stop",
		Usage: llm.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Created: time.Now(),
	}, nil
}
