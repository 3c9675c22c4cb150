package batch

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/docflow/llm"
)

func modelRequest(model, prompt string) *llm.Request {
	return &llm.Request{
		Model:    model,
		Messages: []llm.Message{llm.NewUserMessage(prompt)},
	}
}

// TestGrouper_GroupsByModel checks that requests are grouped by model and
// results reassemble by original index.
func TestGrouper_GroupsByModel(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string][]string)

	call := func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		mu.Lock()
		seen[req.Model] = append(seen[req.Model], req.LastUserContent())
		mu.Unlock()
		return &llm.Response{Model: req.Model, Content: req.LastUserContent()}, nil
	}
	g := NewGrouper(NewCoordinator(call, nil, zap.NewNop()), zap.NewNop())

	reqs := []*llm.Request{
		modelRequest("gpt-4o", "p0"),
		modelRequest("gpt-4o-mini", "p1"),
		modelRequest("gpt-4o", "p2"),
		modelRequest("gpt-4o-mini", "p3"),
		modelRequest("gpt-4o", "p4"),
	}
	results, err := g.Run(context.Background(), reqs, nil, DefaultGrouperOptions())
	require.NoError(t, err)
	require.Len(t, results, 5)

	// Results align with original indices regardless of group dispatch order.
	for i, resp := range results {
		require.NotNil(t, resp, "index %d", i)
		assert.Equal(t, fmt.Sprintf("p%d", i), resp.Content)
		assert.Equal(t, reqs[i].Model, resp.Model)
	}

	assert.ElementsMatch(t, []string{"p0", "p2", "p4"}, seen["gpt-4o"])
	assert.ElementsMatch(t, []string{"p1", "p3"}, seen["gpt-4o-mini"])
}

// TestGrouper_DefaultModelKey falls back to the configured default model for
// requests without one.
func TestGrouper_DefaultModelKey(t *testing.T) {
	var mu sync.Mutex
	var keys []string

	g := NewGrouper(NewCoordinator(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "ok"}, nil
	}, nil, zap.NewNop()), zap.NewNop())

	opts := DefaultGrouperOptions()
	opts.DefaultModel = "fallback-model"
	keyFn := func(req *llm.Request) string {
		key := req.Model
		if key == "" {
			key = opts.DefaultModel
		}
		mu.Lock()
		keys = append(keys, key)
		mu.Unlock()
		return key
	}

	reqs := []*llm.Request{
		modelRequest("", "p0"),
		modelRequest("gpt-4o", "p1"),
	}
	_, err := g.Run(context.Background(), reqs, keyFn, opts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fallback-model", "gpt-4o"}, keys)
}

// TestGrouper_MaxBatchSize splits a large group into sub-batches and still
// reassembles by original index.
func TestGrouper_MaxBatchSize(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	call := func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return &llm.Response{Content: req.LastUserContent()}, nil
	}
	g := NewGrouper(NewCoordinator(call, nil, zap.NewNop()), zap.NewNop())

	opts := GrouperOptions{
		MaxBatchSize: 2,
		DefaultModel: "m",
		Batch:        Options{Concurrency: 2, ChunkSize: 2},
	}

	reqs := make([]*llm.Request, 5)
	for i := range reqs {
		reqs[i] = modelRequest("m", fmt.Sprintf("p%d", i))
	}
	results, err := g.Run(context.Background(), reqs, nil, opts)
	require.NoError(t, err)
	for i, resp := range results {
		require.NotNil(t, resp)
		assert.Equal(t, fmt.Sprintf("p%d", i), resp.Content)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, calls)
}

// TestGrouper_SubBatchFailure marks every index of a failed sub-batch nil
// while other groups succeed.
func TestGrouper_SubBatchFailure(t *testing.T) {
	call := func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: req.LastUserContent()}, nil
	}
	g := NewGrouper(NewCoordinator(call, nil, zap.NewNop()), zap.NewNop())

	reqs := []*llm.Request{
		modelRequest("good", "p0"),
		modelRequest("bad", "p1"),
		modelRequest("good", "p2"),
		modelRequest("bad", "p3"),
	}
	// Structural violation inside the "bad" group makes its whole sub-batch
	// call fail; the grouper converts that into nils, not an overall error.
	reqs[1].Messages = nil
	reqs[3].Messages = nil

	results, err := g.Run(context.Background(), reqs, nil, DefaultGrouperOptions())
	require.NoError(t, err)
	require.Len(t, results, 4)

	require.NotNil(t, results[0])
	assert.Equal(t, "p0", results[0].Content)
	assert.Nil(t, results[1])
	require.NotNil(t, results[2])
	assert.Equal(t, "p2", results[2].Content)
	assert.Nil(t, results[3])
}
