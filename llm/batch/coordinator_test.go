package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/docflow/llm"
)

func makeRequests(n int) []*llm.Request {
	reqs := make([]*llm.Request, n)
	for i := range reqs {
		reqs[i] = &llm.Request{
			Model:    "mock-model",
			Messages: []llm.Message{llm.NewUserMessage(fmt.Sprintf("prompt %d", i))},
		}
	}
	return reqs
}

// echoCall returns a response whose content is the request's prompt, after an
// optional per-request delay.
func echoCall(delay func(i int) time.Duration) CallFunc {
	return func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		content := req.LastUserContent()
		if delay != nil {
			var i int
			fmt.Sscanf(content, "prompt %d", &i)
			select {
			case <-time.After(delay(i)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return &llm.Response{Content: content}, nil
	}
}

// TestCoordinator_PreservesOrder verifies results align with input order even
// when later requests complete first.
func TestCoordinator_PreservesOrder(t *testing.T) {
	const n = 6
	// Earlier requests get longer delays, so completion order is reversed.
	call := echoCall(func(i int) time.Duration {
		return time.Duration(n-i) * 10 * time.Millisecond
	})
	c := NewCoordinator(call, nil, zap.NewNop())

	reqs := makeRequests(n)
	results, err := c.Run(context.Background(), reqs, Options{Concurrency: n, ChunkSize: n})
	require.NoError(t, err)
	require.Len(t, results, n)

	for i, resp := range results {
		require.NotNil(t, resp, "index %d", i)
		assert.Equal(t, fmt.Sprintf("prompt %d", i), resp.Content)
	}
}

// TestCoordinator_FailFastValidation aborts the whole batch on a structural
// violation before any dispatch.
func TestCoordinator_FailFastValidation(t *testing.T) {
	var calls int32
	call := func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		atomic.AddInt32(&calls, 1)
		return &llm.Response{}, nil
	}
	c := NewCoordinator(call, nil, zap.NewNop())

	reqs := makeRequests(3)
	reqs[1].Messages = nil

	_, err := c.Run(context.Background(), reqs, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch request 1")
	assert.True(t, llm.IsValidation(err))
	assert.Zero(t, atomic.LoadInt32(&calls), "no request may be dispatched")
}

// TestCoordinator_PerItemFailure leaves nil at the failed index without
// aborting siblings.
func TestCoordinator_PerItemFailure(t *testing.T) {
	call := func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		if req.LastUserContent() == "prompt 2" {
			return nil, errors.New("upstream exploded")
		}
		return &llm.Response{Content: req.LastUserContent()}, nil
	}
	c := NewCoordinator(call, nil, zap.NewNop())

	reqs := makeRequests(5)
	results, err := c.Run(context.Background(), reqs, Options{Concurrency: 2, ChunkSize: 5})
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, resp := range results {
		if i == 2 {
			assert.Nil(t, resp)
			continue
		}
		require.NotNil(t, resp, "index %d", i)
		assert.Equal(t, fmt.Sprintf("prompt %d", i), resp.Content)
	}
}

// TestCoordinator_BoundsConcurrency ensures at most Concurrency calls are in
// flight within a chunk.
func TestCoordinator_BoundsConcurrency(t *testing.T) {
	const limit = 2
	var active, violations int32
	call := func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		cur := atomic.AddInt32(&active, 1)
		if cur > limit {
			atomic.AddInt32(&violations, 1)
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &llm.Response{}, nil
	}
	c := NewCoordinator(call, nil, zap.NewNop())

	_, err := c.Run(context.Background(), makeRequests(8), Options{Concurrency: limit, ChunkSize: 8})
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&violations))
}

// TestCoordinator_InterChunkDelay runs 7 requests with chunk size 3, so two
// inter-chunk delays must elapse (never one after the last chunk).
func TestCoordinator_InterChunkDelay(t *testing.T) {
	const delay = 60 * time.Millisecond
	c := NewCoordinator(echoCall(nil), nil, zap.NewNop())

	start := time.Now()
	results, err := c.Run(context.Background(), makeRequests(7), Options{
		Concurrency: 3,
		ChunkSize:   3,
		Delay:       delay,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, results, 7)
	for i, resp := range results {
		require.NotNil(t, resp, "index %d", i)
	}
	// 3 chunks -> exactly 2 delays between them.
	assert.GreaterOrEqual(t, elapsed, 2*delay)
	assert.Less(t, elapsed, 6*delay)
}

// TestCoordinator_ContextCancelDuringDelay aborts between chunks.
func TestCoordinator_ContextCancelDuringDelay(t *testing.T) {
	c := NewCoordinator(echoCall(nil), nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Run(ctx, makeRequests(6), Options{
		Concurrency: 3,
		ChunkSize:   3,
		Delay:       time.Hour,
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestCoordinator_EmptyInput returns an empty aligned slice.
func TestCoordinator_EmptyInput(t *testing.T) {
	c := NewCoordinator(echoCall(nil), nil, zap.NewNop())
	results, err := c.Run(context.Background(), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TestChunkIndexes checks the chunk partitioning helper.
func TestChunkIndexes(t *testing.T) {
	chunks := chunkIndexes(7, 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 1, 2}, chunks[0])
	assert.Equal(t, []int{3, 4, 5}, chunks[1])
	assert.Equal(t, []int{6}, chunks[2])

	assert.Nil(t, chunkIndexes(0, 3))
	assert.Len(t, chunkIndexes(3, 10), 1)
}
