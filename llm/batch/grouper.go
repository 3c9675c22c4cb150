package batch

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/docflow/llm"
)

// KeyFunc 为请求计算分组键。
type KeyFunc func(req *llm.Request) string

// GrouperOptions 配置分组批量派发。
type GrouperOptions struct {
	// MaxBatchSize 是每个子批次的请求数上限。
	MaxBatchSize int

	// DefaultModel 在请求未指定模型时作为分组键。
	DefaultModel string

	// Batch 是每个子批次派发时使用的批量选项。
	Batch Options
}

// DefaultGrouperOptions 返回合理的分组默认值。
func DefaultGrouperOptions() GrouperOptions {
	return GrouperOptions{
		MaxBatchSize: 10,
		DefaultModel: "gpt-4o-mini",
		Batch:        DefaultOptions(),
	}
}

// Grouper 先按键分组再委托 Coordinator，结果按原始下标重组。
type Grouper struct {
	coord  *Coordinator
	logger *zap.Logger
}

// NewGrouper 创建分组器。
func NewGrouper(coord *Coordinator, logger *zap.Logger) *Grouper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Grouper{
		coord:  coord,
		logger: logger.With(zap.String("component", "batch_grouper")),
	}
}

type member struct {
	index int
	req   *llm.Request
}

// Run 按键分组派发全部请求。keyFn 为 nil 时按模型名分组
// （空模型回退到 DefaultModel）。
//
// 失败粒度：整个子批次调用出错时，该子批次的所有下标都标记为 nil；
// 子批次内部的单项失败仍由 Coordinator 按单项占位。
func (g *Grouper) Run(ctx context.Context, reqs []*llm.Request, keyFn KeyFunc, opts GrouperOptions) ([]*llm.Response, error) {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 10
	}
	if keyFn == nil {
		keyFn = func(req *llm.Request) string {
			if req != nil && req.Model != "" {
				return req.Model
			}
			return opts.DefaultModel
		}
	}

	// 分组保留原始下标；键的遍历顺序无关紧要，结果按下标写回。
	groups := make(map[string][]member)
	order := make([]string, 0)
	for i, req := range reqs {
		key := keyFn(req)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], member{index: i, req: req})
	}

	results := make([]*llm.Response, len(reqs))
	for _, key := range order {
		members := groups[key]
		for start := 0; start < len(members); start += opts.MaxBatchSize {
			end := start + opts.MaxBatchSize
			if end > len(members) {
				end = len(members)
			}
			sub := members[start:end]

			subReqs := make([]*llm.Request, len(sub))
			for i, m := range sub {
				subReqs[i] = m.req
			}

			subResults, err := g.coord.Run(ctx, subReqs, opts.Batch)
			if err != nil {
				// 子批次整体失败：无法区分内部单项，整个子批次置 nil。
				g.logger.Warn("sub-batch failed",
					zap.String("group", key),
					zap.Int("size", len(sub)),
					zap.Error(err),
				)
				continue
			}
			for i, m := range sub {
				results[m.index] = subResults[i]
			}
		}
	}

	return results, nil
}
