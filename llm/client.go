package llm

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Transport 抽象一次补全调用。与 llm/transport.Transport 同构，在此声明
// 避免核心包反向依赖传输实现。
type Transport interface {
	Completion(ctx context.Context, req *Request) (*Response, error)
	Name() string
}

// Retryer 抽象重试执行器，与 llm/retry.Retryer 同构。
type Retryer interface {
	Do(ctx context.Context, fn func() error) error
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

// Admission 限制同时在途的上游调用数。
type Admission interface {
	Acquire(ctx context.Context) error
	Release()
	Abandon()
	Capacity() int
	Active() int
	QueueLen() int
}

// BatchRunner 执行批量路径（由 llm/batch 提供实现，注入以避免包环）。
type BatchRunner func(ctx context.Context, reqs []*Request) ([]*Response, error)

// ClientConfig 配置客户端的单请求路径。
type ClientConfig struct {
	// MaxConcurrent 是同时在途请求的上限。
	MaxConcurrent int

	// RateLimit 是可选的客户端侧平滑限速（请求/秒），零值禁用。
	RateLimit float64

	// RateBurst 是限速突发额度，零值时取 MaxConcurrent。
	RateBurst int
}

// Client 是单请求与批量路径的入口。
// 单请求路径：校验 → 准入 → 限速 → 重试包裹的传输调用。
type Client struct {
	transport Transport
	retryer   Retryer
	tracker   Tracker
	logger    *zap.Logger

	limiter *rate.Limiter
	tracer  trace.Tracer

	mu    sync.Mutex
	sem   Admission
	batch BatchRunner

	newSem func(capacity int) (Admission, error)
}

// NewClient 创建客户端。newSem 注入准入实现（internal/admission.New）。
func NewClient(cfg ClientConfig, transport Transport, retryer Retryer, newSem func(int) (Admission, error), tracker Tracker, logger *zap.Logger) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("llm: transport is required")
	}
	if retryer == nil {
		return nil, fmt.Errorf("llm: retryer is required")
	}
	if newSem == nil {
		return nil, fmt.Errorf("llm: admission constructor is required")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sem, err := newSem(cfg.MaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("llm: create admission gate: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = cfg.MaxConcurrent
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		transport: transport,
		retryer:   retryer,
		tracker:   orNop(tracker),
		logger:    logger.With(zap.String("component", "llm_client")),
		limiter:   limiter,
		tracer:    otel.Tracer("docflow/llm"),
		sem:       sem,
		newSem:    newSem,
	}, nil
}

// SetBatchRunner 注入批量路径实现。
func (c *Client) SetBatchRunner(run BatchRunner) {
	c.mu.Lock()
	c.batch = run
	c.mu.Unlock()
}

// Provider 返回底层传输的标识。
func (c *Client) Provider() string { return c.transport.Name() }

// Completion 执行单次补全。
// 准入许可覆盖整个重试过程，在所有退出路径上释放；
// req.BypassConcurrency 为真时跳过准入（批量路径使用块级信号量）。
func (c *Client) Completion(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "llm.Completion",
		trace.WithAttributes(
			attribute.String("llm.model", req.Model),
			attribute.String("llm.provider", c.transport.Name()),
		),
	)
	defer span.End()

	if !req.BypassConcurrency {
		sem := c.currentSem()
		if err := sem.Acquire(ctx); err != nil {
			span.SetStatus(codes.Error, "admission")
			span.RecordError(err)
			return nil, fmt.Errorf("llm: admission: %w", err)
		}
		defer func() {
			sem.Release()
			c.sampleConcurrency(sem)
		}()
		c.sampleConcurrency(sem)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, "rate limit wait")
			span.RecordError(err)
			return nil, fmt.Errorf("llm: rate limit wait: %w", err)
		}
	}

	result, err := c.retryer.DoWithResult(ctx, func() (any, error) {
		resp, err := c.transport.Completion(ctx, req)
		if err != nil {
			c.tracker.TrackError("completion", err.Error(), map[string]string{
				"model":    req.Model,
				"provider": c.transport.Name(),
			})
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, "completion failed")
		span.RecordError(err)
		c.logger.Warn("completion failed",
			zap.String("model", req.Model),
			zap.Error(err),
		)
		return nil, err
	}

	resp := result.(*Response)
	span.SetAttributes(attribute.Int("llm.total_tokens", resp.Usage.TotalTokens))
	return resp, nil
}

// CompletionBatch 执行批量补全路径。
// 每项在块级一次性信号量下走单请求路径，客户端自身的准入被旁路。
func (c *Client) CompletionBatch(ctx context.Context, reqs []*Request) ([]*Response, error) {
	c.mu.Lock()
	run := c.batch
	c.mu.Unlock()
	if run == nil {
		return nil, fmt.Errorf("llm: batch runner not configured")
	}

	ctx, span := c.tracer.Start(ctx, "llm.CompletionBatch",
		trace.WithAttributes(attribute.Int("llm.batch_size", len(reqs))),
	)
	defer span.End()

	results, err := run(ctx, reqs)
	if err != nil {
		span.SetStatus(codes.Error, "batch failed")
		span.RecordError(err)
		return nil, err
	}
	return results, nil
}

// SetMaxConcurrent 以新容量替换准入门；旧实例上排队的等待者被显式
// 放弃并收到错误，而不是停留在死实例上。
func (c *Client) SetMaxConcurrent(n int) error {
	fresh, err := c.newSem(n)
	if err != nil {
		return fmt.Errorf("llm: resize admission gate: %w", err)
	}

	c.mu.Lock()
	old := c.sem
	c.sem = fresh
	c.mu.Unlock()

	old.Abandon()
	c.logger.Info("admission capacity changed",
		zap.Int("old", old.Capacity()),
		zap.Int("new", n),
	)
	return nil
}

// MaxConcurrent 返回当前准入容量。
func (c *Client) MaxConcurrent() int {
	return c.currentSem().Capacity()
}

func (c *Client) currentSem() Admission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sem
}

func (c *Client) sampleConcurrency(sem Admission) {
	c.tracker.TrackConcurrency(ConcurrencySample{
		ActiveRequests: sem.Active(),
		MaxConcurrent:  sem.Capacity(),
		QueueLength:    sem.QueueLen(),
	})
}
