package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// snapshotVersion 随快照格式演进递增，便于向前兼容。
const snapshotVersion = 1

// snapshot 是整体重写的单 JSON 文档。
type snapshot struct {
	Entries   map[string]*Entry `json:"entries"`
	Stats     Stats             `json:"stats"`
	LastSaved time.Time         `json:"lastSaved"`
	Version   int               `json:"version"`
}

func (c *ResponseCache) snapshotPath() string {
	return filepath.Join(c.cfg.Dir, snapshotName)
}

// loadSnapshot 读取持久化快照。缺失或损坏都从空启动，绝不致命。
func (c *ResponseCache) loadSnapshot() (map[string]*Entry, Stats) {
	empty := make(map[string]*Entry)

	data, err := os.ReadFile(c.snapshotPath())
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("read cache snapshot failed, starting empty", zap.Error(err))
		}
		return empty, Stats{}
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn("corrupt cache snapshot, starting empty", zap.Error(err))
		return empty, Stats{}
	}
	if snap.Version != snapshotVersion {
		c.logger.Warn("unknown cache snapshot version, starting empty",
			zap.Int("version", snap.Version),
		)
		return empty, Stats{}
	}
	if snap.Entries == nil {
		snap.Entries = empty
	}

	// 体积统计从条目重算，不信任文件里的数字。
	var total int64
	for _, e := range snap.Entries {
		total += e.Size
	}
	snap.Stats.TotalSize = total
	return snap.Entries, snap.Stats
}

// saveSnapshot 整体重写快照：写临时文件后原子改名。
// 仅由单写者任务与 Close 调用，两者通过 done/wg 串行。
func (c *ResponseCache) saveSnapshot() error {
	c.mu.Lock()
	entries := make(map[string]*Entry, len(c.entries))
	for k, v := range c.entries {
		cp := *v
		entries[k] = &cp
	}
	stats := c.stats
	c.mu.Unlock()

	snap := snapshot{
		Entries:   entries,
		Stats:     stats,
		LastSaved: time.Now(),
		Version:   snapshotVersion,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("marshal cache snapshot failed", zap.Error(err))
		return err
	}

	tmp := c.snapshotPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		c.logger.Warn("write cache snapshot failed", zap.Error(err))
		return err
	}
	if err := os.Rename(tmp, c.snapshotPath()); err != nil {
		c.logger.Warn("replace cache snapshot failed", zap.Error(err))
		return err
	}
	return nil
}

// requestFlush 请求一次异步刷盘；信道容量为 1，多次请求自然去抖。
func (c *ResponseCache) requestFlush() {
	select {
	case c.flushCh <- struct{}{}:
	default:
	}
}

// flushLoop 是唯一的后台写盘任务：响应去抖触发与定期快照。
func (c *ResponseCache) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	// 去抖窗口：收到触发后稍等片刻合并后续写入。
	const settle = 100 * time.Millisecond

	for {
		select {
		case <-c.flushCh:
			time.Sleep(settle)
			drain(c.flushCh)
			_ = c.saveSnapshot()
		case <-ticker.C:
			_ = c.saveSnapshot()
		case <-c.done:
			return
		}
	}
}

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
