// Package docflow provides a top-level convenience entry point wiring the
// rate-limited LLM client and the persistent response cache together.
//
// Usage:
//
//	import "github.com/BaSui01/docflow"
//
//	svc, err := docflow.New()                            // mock mode defaults
//	svc, err := docflow.New(docflow.WithConfigPath("config.yaml"))
//	svc, err := docflow.New(docflow.WithConfig(cfg), docflow.WithLogger(logger))
//
//	resp, err := svc.Ask(ctx, "Extract metadata from this letter: ...")
//
// Ask consults the content-addressed cache before issuing a request and
// populates it after a successful response. Callers needing full control
// use svc.Client() and svc.Cache() directly.
package docflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/docflow/config"
	"github.com/BaSui01/docflow/internal/admission"
	"github.com/BaSui01/docflow/llm"
	"github.com/BaSui01/docflow/llm/batch"
	"github.com/BaSui01/docflow/llm/cache"
	"github.com/BaSui01/docflow/llm/retry"
	"github.com/BaSui01/docflow/llm/transport"
)

// Option configures the service created by [New].
type Option func(*options)

type options struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	tracker    llm.Tracker
	transport  llm.Transport
	rdb        *redis.Client
}

// WithConfig sets a pre-built configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigPath loads configuration from a YAML file (env vars still override).
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracker sets the telemetry collaborator.
func WithTracker(tracker llm.Tracker) Option {
	return func(o *options) { o.tracker = tracker }
}

// WithTransport sets a pre-built transport, overriding mock_mode.
func WithTransport(t llm.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithRedis enables the redis mirror tier of the response cache.
func WithRedis(rdb *redis.Client) Option {
	return func(o *options) { o.rdb = rdb }
}

// Service bundles the assembled client and cache.
type Service struct {
	client *llm.Client
	cache  *cache.ResponseCache
	cfg    *config.Config
	logger *zap.Logger
	rdb    *redis.Client
	ownRDB bool
}

// New assembles a Service from configuration.
func New(opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loader := config.NewLoader()
		if o.configPath != "" {
			loader = loader.WithConfigPath(o.configPath)
		}
		loaded, err := loader.Load()
		if err != nil {
			return nil, fmt.Errorf("docflow: load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("docflow: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger = config.BuildLogger(cfg.Log)
	}

	tp := o.transport
	if tp == nil {
		if cfg.API.MockMode {
			tp = transport.NewMockTransport(cfg.API.DefaultModel, logger)
		} else {
			tp = transport.NewHTTPTransport(transport.Config{
				ProviderName: cfg.API.ProviderName,
				APIKey:       cfg.API.APIKey,
				BaseURL:      cfg.API.BaseURL,
				DefaultModel: cfg.API.DefaultModel,
				Timeout:      cfg.API.Timeout,
			}, logger)
		}
	}

	retryer := retry.NewBackoffRetryer(&retry.Policy{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.RetryDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   2.0,
		Jitter:       cfg.Retry.Jitter,
	}, logger)

	newSem := func(n int) (llm.Admission, error) { return admission.New(n) }

	client, err := llm.NewClient(llm.ClientConfig{
		MaxConcurrent: cfg.Concurrency.MaxConcurrentRequests,
		RateLimit:     cfg.Concurrency.RateLimitRPS,
		RateBurst:     cfg.Concurrency.RateLimitBurst,
	}, tp, retryer, newSem, o.tracker, logger)
	if err != nil {
		return nil, fmt.Errorf("docflow: %w", err)
	}

	// 批量路径：分组 → 协调 → 单请求路径（旁路客户端自身准入，
	// 由块级一次性信号量限流）。
	coord := batch.NewCoordinator(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		bypassed := *req
		bypassed.BypassConcurrency = true
		return client.Completion(ctx, &bypassed)
	}, o.tracker, logger)
	grouper := batch.NewGrouper(coord, logger)
	batchOpts := batch.GrouperOptions{
		MaxBatchSize: cfg.Batch.MaxBatchSize,
		DefaultModel: cfg.API.DefaultModel,
		Batch: batch.Options{
			Concurrency: cfg.Batch.Concurrency,
			ChunkSize:   cfg.Batch.BatchSize,
			Delay:       cfg.Batch.BatchDelay,
		},
	}
	client.SetBatchRunner(func(ctx context.Context, reqs []*llm.Request) ([]*llm.Response, error) {
		if cfg.Batch.BatchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Batch.BatchTimeout)
			defer cancel()
		}
		return grouper.Run(ctx, reqs, nil, batchOpts)
	})

	rdb := o.rdb
	ownRDB := false
	if rdb == nil && cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		ownRDB = true
	}

	respCache := cache.NewResponseCache(cache.Config{
		Dir:           cfg.Cache.CacheDir,
		MaxEntries:    cfg.Cache.MaxCacheSize,
		MaxAge:        cfg.Cache.MaxAge,
		Compression:   cfg.Cache.CompressionEnabled,
		FlushInterval: cfg.Cache.FlushInterval,
	}, rdb, o.tracker, logger)

	return &Service{
		client: client,
		cache:  respCache,
		cfg:    cfg,
		logger: logger,
		rdb:    rdb,
		ownRDB: ownRDB,
	}, nil
}

// Client returns the underlying LLM client.
func (s *Service) Client() *llm.Client { return s.client }

// Cache returns the underlying response cache.
func (s *Service) Cache() *cache.ResponseCache { return s.cache }

// Config returns the effective configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Ask issues a single user prompt through the cached single-request path.
func (s *Service) Ask(ctx context.Context, prompt string) (*llm.Response, error) {
	key := cache.Key(prompt)
	if resp, ok := s.cache.Get(ctx, key); ok {
		return resp, nil
	}

	resp, err := s.client.Completion(ctx, &llm.Request{
		Model:    s.cfg.API.DefaultModel,
		Messages: []llm.Message{llm.NewUserMessage(prompt)},
	})
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, resp)
	return resp, nil
}

// AskBatch issues many prompts through the batch path. Prompts already cached
// are answered locally; the rest go upstream and populate the cache. Failed
// items stay nil in the result slice.
func (s *Service) AskBatch(ctx context.Context, prompts []string) ([]*llm.Response, error) {
	results := make([]*llm.Response, len(prompts))

	pending := make([]*llm.Request, 0, len(prompts))
	pendingIdx := make([]int, 0, len(prompts))
	for i, prompt := range prompts {
		if resp, ok := s.cache.Get(ctx, cache.Key(prompt)); ok {
			results[i] = resp
			continue
		}
		pending = append(pending, &llm.Request{
			Model:    s.cfg.API.DefaultModel,
			Messages: []llm.Message{llm.NewUserMessage(prompt)},
		})
		pendingIdx = append(pendingIdx, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	fetched, err := s.client.CompletionBatch(ctx, pending)
	if err != nil {
		return nil, err
	}
	for j, resp := range fetched {
		i := pendingIdx[j]
		results[i] = resp
		if resp != nil {
			s.cache.Set(ctx, cache.Key(prompts[i]), resp)
		}
	}
	return results, nil
}

// Close releases the cache and any owned redis connection.
func (s *Service) Close() error {
	var errs []error
	if err := s.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.ownRDB && s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
