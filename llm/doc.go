// 版权所有 2025 DocFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供面向生成式文本服务的限流客户端核心：统一的请求/响应类型、
带类型判别的错误分类，以及单请求与批量两条调用路径。

# 概述

文档元数据类工具往往有大量彼此独立的调用方同时请求 AI 生成结果。
本包通过准入控制（计数信号量）约束并发上游调用，通过分类重试吸收
瞬时故障，并与内容寻址的响应缓存（见 llm/cache 子包）配合避免重复计算。

# 核心类型

  - Request / Message / Response：与具体 Provider 线格式解耦的规范化类型。
  - Error / ErrorCode：在传输层边界赋值的类型化错误判别，Retryable 标记
    决定重试行为，替代脆弱的错误文案子串匹配。
  - Client：单请求路径（准入 → 重试 → 传输）与批量路径
    （分组 → 分块 → 单请求路径）的统一入口。

# 调用路径

单请求：Completion 先通过准入控制获得许可，再在重试调度器内执行一次
传输层调用；许可在所有退出路径上释放。

批量：CompletionBatch 先按模型分组（llm/batch.Grouper），每组按块大小
切分后由 llm/batch.Coordinator 以一次性信号量约束并发逐块派发，
结果按原始下标重组，单项失败以 nil 占位而不影响同批其他请求。

# 使用方式

	client, err := llm.NewClient(llm.ClientConfig{
		Transport:     transport.NewHTTPTransport(tcfg, logger),
		MaxConcurrent: 5,
	}, logger)
	resp, err := client.Completion(ctx, req)
*/
package llm
