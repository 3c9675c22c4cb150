package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/docflow/internal/admission"
	"github.com/BaSui01/docflow/llm"
)

// CallFunc 执行单请求路径的一次调用（准入由 Coordinator 的一次性
// 信号量负责，传入的函数不应再排队）。
type CallFunc func(ctx context.Context, req *llm.Request) (*llm.Response, error)

// Options 配置一次批量派发。
type Options struct {
	Concurrency int           // 每块内的并发上限 C
	ChunkSize   int           // 块大小 S
	Delay       time.Duration // 块间延迟 D（最后一块之后不延迟）
}

// DefaultOptions 返回合理的批量默认值。
func DefaultOptions() Options {
	return Options{
		Concurrency: 3,
		ChunkSize:   5,
		Delay:       1 * time.Second,
	}
}

func (o Options) normalize() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1
	}
	return o
}

// Coordinator 将有序请求列表按块派发，保持结果与输入对齐。
type Coordinator struct {
	call    CallFunc
	logger  *zap.Logger
	tracker llm.Tracker
}

// NewCoordinator 创建批量协调器。
func NewCoordinator(call CallFunc, tracker llm.Tracker, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = llm.NopTracker{}
	}
	return &Coordinator{
		call:    call,
		logger:  logger.With(zap.String("component", "batch")),
		tracker: tracker,
	}
}

type indexed struct {
	index int
	resp  *llm.Response
}

// Run 派发整个批次并返回与输入对齐的结果切片。
// 结构校验失败同步返回错误且不发出任何调用；单项执行失败在对应
// 下标留下 nil。
func (c *Coordinator) Run(ctx context.Context, reqs []*llm.Request, opts Options) ([]*llm.Response, error) {
	opts = opts.normalize()

	// 结构校验先于一切派发：形状错误快速失败，区别于内容/上游错误。
	for i, req := range reqs {
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("batch request %d: %w", i, err)
		}
	}

	results := make([]*llm.Response, len(reqs))
	if len(reqs) == 0 {
		return results, nil
	}

	chunks := chunkIndexes(len(reqs), opts.ChunkSize)
	for ci, chunk := range chunks {
		if err := c.runChunk(ctx, reqs, results, chunk, opts.Concurrency); err != nil {
			return nil, err
		}

		// 块间延迟，最后一块之后没有。
		if opts.Delay > 0 && ci < len(chunks)-1 {
			select {
			case <-time.After(opts.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return results, nil
}

// runChunk 以一次性信号量并发派发一块内的全部请求。
func (c *Coordinator) runChunk(ctx context.Context, reqs []*llm.Request, results []*llm.Response, chunk []int, concurrency int) error {
	sem := admission.MustNew(concurrency)
	defer sem.Abandon()

	var wg sync.WaitGroup
	out := make(chan indexed, len(chunk))

	for _, idx := range chunk {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			if err := sem.Acquire(ctx); err != nil {
				c.warnItem(idx, err)
				out <- indexed{index: idx}
				return
			}
			defer sem.Release()

			c.tracker.TrackConcurrency(llm.ConcurrencySample{
				ActiveRequests: sem.Active(),
				MaxConcurrent:  sem.Capacity(),
				QueueLength:    sem.QueueLen(),
			})

			resp, err := c.call(ctx, reqs[idx])
			if err != nil {
				// 单项失败只占位，不中止同块其他请求。
				c.warnItem(idx, err)
				out <- indexed{index: idx}
				return
			}
			out <- indexed{index: idx, resp: resp}
		}(idx)
	}

	wg.Wait()
	close(out)

	for r := range out {
		results[r.index] = r.resp
	}
	return nil
}

func (c *Coordinator) warnItem(idx int, err error) {
	c.logger.Warn("batch item failed",
		zap.Int("index", idx),
		zap.Error(err),
	)
	c.tracker.TrackError("batch_item", err.Error(), map[string]string{
		"index": fmt.Sprintf("%d", idx),
	})
}

// chunkIndexes 把 [0,n) 切分为大小至多 size 的连续下标块。
func chunkIndexes(n, size int) [][]int {
	var chunks [][]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		chunk := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			chunk = append(chunk, i)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
