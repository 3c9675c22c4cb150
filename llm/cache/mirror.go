package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/docflow/llm"
)

// Redis 镜像层：磁盘快照是权威层，Redis 只加速跨进程共享。
// 所有镜像失败都记录日志并退化为未命中/空操作。

const mirrorKeyPrefix = "docflow:response_cache:"

// mirrorGet 在本地未命中后回查 Redis 并回填本地。
func (c *ResponseCache) mirrorGet(ctx context.Context, key string) (*llm.Response, bool) {
	if c.rdb == nil {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, mirrorKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis mirror get failed", zap.Error(err))
		}
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("redis mirror entry corrupt", zap.Error(err))
		return nil, false
	}
	if time.Since(e.Timestamp) > c.cfg.MaxAge {
		return nil, false
	}

	// 回填本地并按命中记账。
	c.mu.Lock()
	if c.state == stateReady {
		if old, ok := c.entries[key]; ok {
			c.stats.TotalSize -= old.Size
		}
		e.AccessCount++
		c.entries[key] = &e
		c.stats.TotalSize += e.Size
		c.stats.Hits++
	}
	size := c.stats.TotalSize
	c.mu.Unlock()

	c.logger.Debug("redis mirror hit", zap.String("key", key))
	c.tracker.TrackCachePerformance(llm.CacheSample{Hit: true, Size: size})
	return c.decode(e.Data, e.Compressed), true
}

// mirrorSet 异步镜像写入，TTL 对齐 MaxAge。
func (c *ResponseCache) mirrorSet(ctx context.Context, key string, e *Entry) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := c.rdb.Set(ctx, mirrorKeyPrefix+key, data, c.cfg.MaxAge).Err(); err != nil {
			c.logger.Warn("redis mirror set failed", zap.Error(err))
		}
	}()
}
