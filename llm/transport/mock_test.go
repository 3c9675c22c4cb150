package transport

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/docflow/llm"
)

func mockWithZeroLatency() *MockTransport {
	m := NewMockTransport("mock-model", zap.NewNop())
	m.Latency = func(*llm.Request) time.Duration { return 0 }
	return m
}

func promptReq(prompt string) *llm.Request {
	return &llm.Request{Messages: []llm.Message{llm.NewUserMessage(prompt)}}
}

// TestMockTransport_KeywordRouting verifies deterministic stub selection by
// keyword scan of the last user message.
func TestMockTransport_KeywordRouting(t *testing.T) {
	m := mockWithZeroLatency()
	ctx := context.Background()

	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"metadata keyword", "Please extract METADATA from this letter", mockMetadataStub},
		{"extract keyword", "extract the client name", mockMetadataStub},
		{"classify keyword", "classify this document", mockClassifyStub},
		{"type keyword", "what type of document is this", mockClassifyStub},
		{"summarize keyword", "summarize the attached letter", mockSummaryStub},
		{"generic fallback", "hello there", mockGenericStub},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := m.Completion(ctx, promptReq(tt.prompt))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Content)
		})
	}
}

// TestMockTransport_MetadataStubShape asserts the structured JSON stub parses
// and carries the documented fields.
func TestMockTransport_MetadataStubShape(t *testing.T) {
	m := mockWithZeroLatency()

	resp, err := m.Completion(context.Background(), promptReq("extract metadata"))
	require.NoError(t, err)

	var meta struct {
		ClientName string   `json:"clientName"`
		Date       string   `json:"date"`
		DocType    string   `json:"docType"`
		Confidence float64  `json:"confidence"`
		Snippets   []string `json:"snippets"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Content), &meta))
	assert.NotEmpty(t, meta.ClientName)
	assert.NotEmpty(t, meta.Date)
	assert.NotEmpty(t, meta.DocType)
	assert.Greater(t, meta.Confidence, 0.0)
	assert.NotEmpty(t, meta.Snippets)
}

// TestMockTransport_ResponseShape covers the normalized response fields.
func TestMockTransport_ResponseShape(t *testing.T) {
	m := mockWithZeroLatency()

	resp, err := m.Completion(context.Background(), promptReq("summarize this"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.ID, "mock-"))
	assert.Equal(t, "mock-model", resp.Model)
	assert.Equal(t, llm.RoleAssistant, resp.Role)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Greater(t, resp.Usage.PromptTokens, 0)
	assert.Greater(t, resp.Usage.CompletionTokens, 0)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	assert.False(t, resp.Created.IsZero())
}

// TestMockTransport_SimulatedDelay checks the default delay stays inside the
// documented 100-300ms window.
func TestMockTransport_SimulatedDelay(t *testing.T) {
	m := NewMockTransport("", zap.NewNop())

	start := time.Now()
	_, err := m.Completion(context.Background(), promptReq("hello"))
	require.NoError(t, err)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 600*time.Millisecond)
}

// TestMockTransport_ContextCancel returns a retryable timeout error when the
// caller gives up mid-delay.
func TestMockTransport_ContextCancel(t *testing.T) {
	m := NewMockTransport("", zap.NewNop())
	m.Latency = func(*llm.Request) time.Duration { return time.Hour }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Completion(ctx, promptReq("hello"))
	require.Error(t, err)

	var le *llm.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, llm.ErrUpstreamTimeout, le.Code)
	assert.True(t, le.Retryable)
}
