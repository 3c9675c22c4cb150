package cache

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/docflow/llm"
)

// Entry 缓存条目，仅由 ResponseCache 的 get/set/evict 操作修改。
type Entry struct {
	Data        json.RawMessage `json:"data"`
	Timestamp   time.Time       `json:"timestamp"`
	AccessCount int             `json:"access_count"`
	Compressed  bool            `json:"compressed"`
	Size        int64           `json:"size"`
}

// Stats 缓存统计。
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Expired   int64 `json:"expired"`
	TotalSize int64 `json:"total_size"`
	Entries   int   `json:"entries"`
}

// Config 缓存配置。
type Config struct {
	// Dir 是快照文件所在目录，初始化时自动创建。
	Dir string

	// MaxEntries 是条目数上限；插入后超限会在 Set 返回前清扫。
	MaxEntries int

	// MaxAge 是条目寿命；超龄条目语义上视为不存在。
	MaxAge time.Duration

	// Compression 启用短键结构压缩。
	Compression bool

	// FlushInterval 是后台定期快照间隔。
	FlushInterval time.Duration
}

// DefaultConfig 返回默认缓存配置。
func DefaultConfig() Config {
	return Config{
		Dir:           ".docflow-cache",
		MaxEntries:    1000,
		MaxAge:        24 * time.Hour,
		Compression:   true,
		FlushInterval: 5 * time.Minute,
	}
}

const snapshotName = "responses.json"

type cacheState int

const (
	stateUninitialized cacheState = iota
	stateInitializing
	stateReady
	stateClosing
	stateClosed
)

// ResponseCache 是惰性初始化、磁盘快照持久化的内容寻址响应缓存。
type ResponseCache struct {
	cfg     Config
	logger  *zap.Logger
	tracker llm.Tracker
	rdb     *redis.Client // 可选镜像层，nil 时禁用

	sf singleflight.Group

	mu      sync.Mutex
	state   cacheState
	entries map[string]*Entry
	stats   Stats

	flushCh chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewResponseCache 创建响应缓存。rdb 为 nil 时不启用 Redis 镜像。
func NewResponseCache(cfg Config, rdb *redis.Client, tracker llm.Tracker, logger *zap.Logger) *ResponseCache {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = llm.NopTracker{}
	}
	return &ResponseCache{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "response_cache")),
		tracker: tracker,
		rdb:     rdb,
		entries: make(map[string]*Entry),
		flushCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Init 显式初始化：确保目录存在、加载快照、启动单写者刷盘任务。
// 幂等；并发调用方通过 singleflight 等待同一次进行中的初始化。
func (c *ResponseCache) Init(ctx context.Context) error {
	_, err, _ := c.sf.Do("init", func() (any, error) {
		c.mu.Lock()
		if c.state != stateUninitialized {
			c.mu.Unlock()
			return nil, nil
		}
		c.state = stateInitializing
		c.mu.Unlock()

		if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
			// 目录不可用时缓存退化为纯内存，不致命。
			c.logger.Warn("create cache dir failed, running memory-only", zap.Error(err))
		}
		entries, stats := c.loadSnapshot()

		c.mu.Lock()
		c.entries = entries
		c.stats = stats
		c.state = stateReady
		c.mu.Unlock()

		c.wg.Add(1)
		go c.flushLoop()

		c.logger.Info("response cache ready",
			zap.Int("entries", len(entries)),
			zap.String("dir", c.cfg.Dir),
		)
		return nil, nil
	})
	return err
}

// ensureInit 懒初始化入口。
func (c *ResponseCache) ensureInit(ctx context.Context) {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	if st == stateUninitialized || st == stateInitializing {
		_ = c.Init(ctx)
	}
}

// Get 查询缓存。未命中或已过期返回 (nil, false)；过期条目顺带删除。
func (c *ResponseCache) Get(ctx context.Context, key string) (*llm.Response, bool) {
	c.ensureInit(ctx)

	c.mu.Lock()
	if c.state != stateReady {
		c.mu.Unlock()
		return nil, false
	}
	e, ok := c.entries[key]
	if ok && time.Since(e.Timestamp) > c.cfg.MaxAge {
		// 惰性过期：超龄条目语义上不存在。
		c.removeLocked(key, e)
		c.stats.Expired++
		ok = false
	}
	if !ok {
		c.stats.Misses++
		size := c.stats.TotalSize
		c.mu.Unlock()
		c.tracker.TrackCachePerformance(llm.CacheSample{Hit: false, Size: size})
		return c.mirrorGet(ctx, key)
	}

	e.AccessCount++
	c.stats.Hits++
	data := e.Data
	compressed := e.Compressed
	size := c.stats.TotalSize
	c.mu.Unlock()

	c.tracker.TrackCachePerformance(llm.CacheSample{Hit: true, Size: size})
	return c.decode(data, compressed), true
}

// Set 写入缓存并在必要时于返回前完成淘汰清扫；刷盘是异步去抖的。
func (c *ResponseCache) Set(ctx context.Context, key string, resp *llm.Response) {
	c.ensureInit(ctx)
	if resp == nil {
		return
	}

	data, compressed, err := c.encode(resp)
	if err != nil {
		c.logger.Warn("encode cache entry failed", zap.Error(err))
		return
	}

	e := &Entry{
		Data:        data,
		Timestamp:   time.Now(),
		AccessCount: 0,
		Compressed:  compressed,
		Size:        int64(len(data)),
	}

	c.mu.Lock()
	if c.state != stateReady {
		c.mu.Unlock()
		return
	}
	if old, ok := c.entries[key]; ok {
		c.stats.TotalSize -= old.Size
	}
	c.entries[key] = e
	c.stats.TotalSize += e.Size
	if len(c.entries) > c.cfg.MaxEntries {
		c.evictLocked()
	}
	c.mu.Unlock()

	c.requestFlush()
	c.mirrorSet(ctx, key, e)
}

// Delete 删除单个条目。
func (c *ResponseCache) Delete(ctx context.Context, key string) {
	c.ensureInit(ctx)
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
	c.mu.Unlock()
	c.requestFlush()
}

// Clear 清空全部条目。
func (c *ResponseCache) Clear(ctx context.Context) {
	c.ensureInit(ctx)
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.stats.TotalSize = 0
	c.mu.Unlock()
	c.requestFlush()
}

// Cleanup 主动清除所有超龄条目（get 的惰性过期之外的显式清理）。
func (c *ResponseCache) Cleanup(ctx context.Context) int {
	c.ensureInit(ctx)
	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if time.Since(e.Timestamp) > c.cfg.MaxAge {
			c.removeLocked(key, e)
			c.stats.Expired++
			removed++
		}
	}
	c.mu.Unlock()
	if removed > 0 {
		c.requestFlush()
	}
	return removed
}

// Stats 返回统计快照。
func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// Len 返回当前条目数。
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close 停止后台刷盘并尽力做最终保存。幂等。
func (c *ResponseCache) Close() error {
	c.mu.Lock()
	if c.state != stateReady {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosing
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()

	err := c.saveSnapshot()

	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
	return err
}

// --- 淘汰 ---

// evictLocked 按 score = age/maxAge − accessCount×0.1 清扫最高分条目。
// 调用方持锁。
func (c *ResponseCache) evictLocked() {
	type scored struct {
		key   string
		score float64
	}
	now := time.Now()
	candidates := make([]scored, 0, len(c.entries))
	for key, e := range c.entries {
		age := now.Sub(e.Timestamp)
		score := float64(age)/float64(c.cfg.MaxAge) - float64(e.AccessCount)*0.1
		candidates = append(candidates, scored{key: key, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	n := int(math.Ceil(float64(len(c.entries)) * 0.1))
	if over := len(c.entries) - c.cfg.MaxEntries + 1; over > n {
		n = over
	}
	if n > len(candidates) {
		n = len(candidates)
	}

	var size int64
	for _, cand := range candidates[:n] {
		if e, ok := c.entries[cand.key]; ok {
			c.removeLocked(cand.key, e)
		}
	}
	c.stats.Evictions += int64(n)
	size = c.stats.TotalSize

	c.logger.Debug("eviction sweep",
		zap.Int("evicted", n),
		zap.Int("remaining", len(c.entries)),
	)
	c.tracker.TrackCachePerformance(llm.CacheSample{Size: size, Eviction: true})
}

// removeLocked 删除条目并维护体积统计。调用方持锁。
func (c *ResponseCache) removeLocked(key string, e *Entry) {
	delete(c.entries, key)
	c.stats.TotalSize -= e.Size
	if c.stats.TotalSize < 0 {
		c.stats.TotalSize = 0
	}
}

// --- 编解码 ---

func (c *ResponseCache) encode(resp *llm.Response) (json.RawMessage, bool, error) {
	if c.cfg.Compression {
		data, err := compressResponse(resp)
		if err == nil {
			return data, true, nil
		}
		c.logger.Warn("compress failed, storing plain", zap.Error(err))
	}
	data, err := json.Marshal(resp)
	return data, false, err
}

// decode 还原存储的响应。解压失败绝不上浮：依次回退到明文解析、
// 原始串兜底。
func (c *ResponseCache) decode(data json.RawMessage, compressed bool) *llm.Response {
	if compressed {
		if resp, err := decompressResponse(data); err == nil {
			return resp
		}
		c.logger.Warn("decompress failed, falling back to raw payload")
	}
	var resp llm.Response
	if err := json.Unmarshal(data, &resp); err == nil {
		return &resp
	}
	return &llm.Response{Content: string(data)}
}
