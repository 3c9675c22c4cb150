package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/docflow/llm"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 是 llm.Tracker 的 Prometheus 实现。
type Collector struct {
	// 缓存指标
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheSize      prometheus.Gauge

	// 错误指标
	errorsTotal *prometheus.CounterVec

	// 并发指标
	activeRequests prometheus.Gauge
	maxConcurrent  prometheus.Gauge
	queueLength    prometheus.Gauge

	logger *zap.Logger
}

var _ llm.Tracker = (*Collector)(nil)

// NewCollector 创建指标收集器。reg 为 nil 时注册到默认 Registry。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 缓存指标
	c.cacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Total number of response cache hits",
	})
	c.cacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Total number of response cache misses",
	})
	c.cacheEvictions = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_evictions_total",
		Help:      "Total number of eviction sweeps",
	})
	c.cacheSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_size_bytes",
		Help:      "Current total size of cached payloads in bytes",
	})

	// 错误指标
	c.errorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Total number of tracked errors by kind",
	}, []string{"kind"})

	// 并发指标
	c.activeRequests = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_requests",
		Help:      "Number of in-flight upstream requests",
	})
	c.maxConcurrent = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "max_concurrent_requests",
		Help:      "Configured admission capacity",
	})
	c.queueLength = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "admission_queue_length",
		Help:      "Number of callers waiting for an admission permit",
	})

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// TrackCachePerformance 记录一次缓存查询或淘汰清扫。
func (c *Collector) TrackCachePerformance(sample llm.CacheSample) {
	if sample.Eviction {
		c.cacheEvictions.Inc()
	} else if sample.Hit {
		c.cacheHits.Inc()
	} else {
		c.cacheMisses.Inc()
	}
	c.cacheSize.Set(float64(sample.Size))
}

// =============================================================================
// ⚠️ 错误指标记录
// =============================================================================

// TrackError 按种类累计错误。message 与 context 仅记入日志。
func (c *Collector) TrackError(kind, message string, context map[string]string) {
	c.errorsTotal.WithLabelValues(kind).Inc()

	fields := make([]zap.Field, 0, len(context)+2)
	fields = append(fields, zap.String("kind", kind), zap.String("message", message))
	for k, v := range context {
		fields = append(fields, zap.String(k, v))
	}
	c.logger.Debug("tracked error", fields...)
}

// =============================================================================
// 🚦 并发指标记录
// =============================================================================

// TrackConcurrency 记录一次准入采样。
func (c *Collector) TrackConcurrency(sample llm.ConcurrencySample) {
	c.activeRequests.Set(float64(sample.ActiveRequests))
	c.maxConcurrent.Set(float64(sample.MaxConcurrent))
	c.queueLength.Set(float64(sample.QueueLength))
}
