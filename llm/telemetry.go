package llm

// CacheSample 描述一次缓存访问或淘汰事件。
type CacheSample struct {
	Hit      bool  // 是否命中
	Size     int64 // 当前缓存总字节数
	Eviction bool  // 是否为淘汰事件
}

// ConcurrencySample 描述准入控制的瞬时状态。
type ConcurrencySample struct {
	ActiveRequests int // 持有许可的请求数
	MaxConcurrent  int // 许可上限
	QueueLength    int // 排队等待的请求数
}

// Tracker 是可选的遥测协作方。所有回调都是副作用钩子，
// 实现不得阻塞；缺省时使用 NopTracker。
type Tracker interface {
	TrackCachePerformance(s CacheSample)
	TrackError(kind, message string, context map[string]string)
	TrackConcurrency(s ConcurrencySample)
}

// NopTracker 丢弃所有遥测事件。
type NopTracker struct{}

func (NopTracker) TrackCachePerformance(CacheSample) {}

func (NopTracker) TrackError(string, string, map[string]string) {}

func (NopTracker) TrackConcurrency(ConcurrencySample) {}

// orNop 规整化可选 Tracker。
func orNop(t Tracker) Tracker {
	if t == nil {
		return NopTracker{}
	}
	return t
}
