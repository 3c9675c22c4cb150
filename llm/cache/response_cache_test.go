package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/docflow/llm"
)

func testCache(t *testing.T, cfg Config) *ResponseCache {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	c := NewResponseCache(cfg, nil, nil, zap.NewNop())
	require.NoError(t, c.Init(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleResponse(content string) *llm.Response {
	return &llm.Response{
		ID:           "cmpl-1",
		Model:        "gpt-4o-mini",
		Content:      content,
		Role:         llm.RoleAssistant,
		FinishReason: "stop",
		Usage:        llm.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
		Created:      time.Unix(1700000000, 0),
	}
}

// assertSameResponse compares field by field; Created is compared with
// time.Equal to sidestep location differences after a JSON round trip.
func assertSameResponse(t *testing.T, want, got *llm.Response) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Model, got.Model)
	assert.Equal(t, want.Content, got.Content)
	assert.Equal(t, want.Role, got.Role)
	assert.Equal(t, want.FinishReason, got.FinishReason)
	assert.Equal(t, want.Usage, got.Usage)
	assert.True(t, want.Created.Equal(got.Created))
}

// TestResponseCache_RoundTrip sets then gets and expects a deep-equal value.
func TestResponseCache_RoundTrip(t *testing.T) {
	for _, compression := range []bool{true, false} {
		t.Run(fmt.Sprintf("compression=%v", compression), func(t *testing.T) {
			c := testCache(t, Config{Compression: compression})
			ctx := context.Background()

			want := sampleResponse("the answer")
			key := Key("what is the answer")
			c.Set(ctx, key, want)

			got, ok := c.Get(ctx, key)
			require.True(t, ok)
			assertSameResponse(t, want, got)

			stats := c.Stats()
			assert.Equal(t, int64(1), stats.Hits)
			assert.Equal(t, 1, stats.Entries)
		})
	}
}

// TestResponseCache_Miss reports a miss for an unknown key.
func TestResponseCache_Miss(t *testing.T) {
	c := testCache(t, Config{})
	_, ok := c.Get(context.Background(), Key("never asked"))
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

// TestResponseCache_LazyExpiry removes an over-age entry on access.
func TestResponseCache_LazyExpiry(t *testing.T) {
	c := testCache(t, Config{MaxAge: 30 * time.Millisecond})
	ctx := context.Background()

	key := Key("ephemeral")
	c.Set(ctx, key, sampleResponse("gone soon"))

	_, ok := c.Get(ctx, key)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry must be removed")
	assert.Equal(t, int64(1), c.Stats().Expired)
}

// TestResponseCache_EvictionBound inserts maxEntries+1 distinct keys and
// expects the final size to stay within the bound.
func TestResponseCache_EvictionBound(t *testing.T) {
	const maxEntries = 10
	c := testCache(t, Config{MaxEntries: maxEntries})
	ctx := context.Background()

	for i := 0; i <= maxEntries; i++ {
		c.Set(ctx, Key(fmt.Sprintf("prompt %d", i)), sampleResponse(fmt.Sprintf("answer %d", i)))
	}

	assert.LessOrEqual(t, c.Len(), maxEntries)
	assert.Greater(t, c.Stats().Evictions, int64(0))
}

// TestResponseCache_EvictionPrefersColdEntries verifies the access-weighted
// score: a frequently read entry survives a sweep that evicts its cold peers.
func TestResponseCache_EvictionPrefersColdEntries(t *testing.T) {
	const maxEntries = 5
	c := testCache(t, Config{MaxEntries: maxEntries, MaxAge: time.Hour})
	ctx := context.Background()

	hotKey := Key("hot prompt")
	c.Set(ctx, hotKey, sampleResponse("hot"))
	for i := 0; i < 20; i++ {
		_, ok := c.Get(ctx, hotKey)
		require.True(t, ok)
	}

	for i := 0; i < maxEntries+2; i++ {
		c.Set(ctx, Key(fmt.Sprintf("cold %d", i)), sampleResponse("cold"))
	}

	_, ok := c.Get(ctx, hotKey)
	assert.True(t, ok, "hot entry must survive eviction of cold peers")
}

// TestResponseCache_DeleteAndClear covers explicit removal.
func TestResponseCache_DeleteAndClear(t *testing.T) {
	c := testCache(t, Config{})
	ctx := context.Background()

	k1, k2 := Key("a"), Key("b")
	c.Set(ctx, k1, sampleResponse("a"))
	c.Set(ctx, k2, sampleResponse("b"))

	c.Delete(ctx, k1)
	_, ok := c.Get(ctx, k1)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Clear(ctx)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().TotalSize)
}

// TestResponseCache_Cleanup eagerly drops all over-age entries.
func TestResponseCache_Cleanup(t *testing.T) {
	c := testCache(t, Config{MaxAge: 30 * time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Set(ctx, Key(fmt.Sprintf("old %d", i)), sampleResponse("old"))
	}
	time.Sleep(60 * time.Millisecond)
	c.Set(ctx, Key("fresh"), sampleResponse("fresh"))

	removed := c.Cleanup(ctx)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, c.Len())
}

// TestResponseCache_PersistenceRoundTrip saves on Close and reloads the
// snapshot in a fresh instance.
func TestResponseCache_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewResponseCache(Config{Dir: dir}, nil, nil, zap.NewNop())
	require.NoError(t, first.Init(ctx))

	want := sampleResponse("persisted")
	key := Key("durable prompt")
	first.Set(ctx, key, want)
	require.NoError(t, first.Close())

	second := NewResponseCache(Config{Dir: dir}, nil, nil, zap.NewNop())
	require.NoError(t, second.Init(ctx))
	defer second.Close()

	got, ok := second.Get(ctx, key)
	require.True(t, ok)
	assertSameResponse(t, want, got)
}

// TestResponseCache_CorruptSnapshot starts empty without failing.
func TestResponseCache_CorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotName), []byte("{{{ not json"), 0o644))

	c := NewResponseCache(Config{Dir: dir}, nil, nil, zap.NewNop())
	require.NoError(t, c.Init(context.Background()))
	defer c.Close()

	assert.Equal(t, 0, c.Len())
	// The cache is fully usable afterwards.
	c.Set(context.Background(), Key("k"), sampleResponse("v"))
	_, ok := c.Get(context.Background(), Key("k"))
	assert.True(t, ok)
}

// TestResponseCache_UnknownSnapshotVersion also starts empty.
func TestResponseCache_UnknownSnapshotVersion(t *testing.T) {
	dir := t.TempDir()
	doc := `{"entries":{},"stats":{},"lastSaved":"2026-01-01T00:00:00Z","version":99}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotName), []byte(doc), 0o644))

	c := NewResponseCache(Config{Dir: dir}, nil, nil, zap.NewNop())
	require.NoError(t, c.Init(context.Background()))
	defer c.Close()
	assert.Equal(t, 0, c.Len())
}

// TestResponseCache_ImplicitInit triggers initialization from get/set.
func TestResponseCache_ImplicitInit(t *testing.T) {
	c := NewResponseCache(Config{Dir: t.TempDir()}, nil, nil, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	// No explicit Init call.
	c.Set(ctx, Key("k"), sampleResponse("v"))
	_, ok := c.Get(ctx, Key("k"))
	assert.True(t, ok)
}

// TestResponseCache_DecodeFallback feeds an unparseable stored payload and
// expects the raw string fallback instead of an error.
func TestResponseCache_DecodeFallback(t *testing.T) {
	c := testCache(t, Config{})

	resp := c.decode([]byte("not-json"), true)
	require.NotNil(t, resp)
	assert.Equal(t, "not-json", resp.Content)

	resp = c.decode([]byte("not-json"), false)
	require.NotNil(t, resp)
	assert.Equal(t, "not-json", resp.Content)
}

// TestResponseCache_CloseIdempotent allows repeated Close calls.
func TestResponseCache_CloseIdempotent(t *testing.T) {
	c := NewResponseCache(Config{Dir: t.TempDir()}, nil, nil, zap.NewNop())
	require.NoError(t, c.Init(context.Background()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// Operations after Close degrade to miss/no-op.
	_, ok := c.Get(context.Background(), Key("k"))
	assert.False(t, ok)
}
