// =============================================================================
// 📦 DocFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		API:         DefaultAPIConfig(),
		Retry:       DefaultRetryConfig(),
		Concurrency: DefaultConcurrencyConfig(),
		Batch:       DefaultBatchConfig(),
		Cache:       DefaultCacheConfig(),
		Redis:       DefaultRedisConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultAPIConfig 返回默认上游配置
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		BaseURL:      "https://api.openai.com/v1",
		DefaultModel: "gpt-4o-mini",
		Timeout:      30 * time.Second,
		MockMode:     true,
		ProviderName: "openai-compat",
	}
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		MaxDelay:   30 * time.Second,
		Jitter:     true,
	}
}

// DefaultConcurrencyConfig 返回默认并发配置
func DefaultConcurrencyConfig() ConcurrencyConfig {
	return ConcurrencyConfig{
		MaxConcurrentRequests: 3,
		RateLimitRPS:          0,
		RateLimitBurst:        0,
	}
}

// DefaultBatchConfig 返回默认批量配置
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:    5,
		BatchDelay:   1 * time.Second,
		BatchTimeout: 5 * time.Minute,
		Concurrency:  3,
		MaxBatchSize: 10,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		CacheDir:           ".docflow-cache",
		MaxCacheSize:       1000,
		MaxAge:             24 * time.Hour,
		CompressionEnabled: true,
		FlushInterval:      5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 镜像配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  false,
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
		PoolSize: 10,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "docflow",
		SampleRate:   1.0,
		MetricsPort:  0,
	}
}
