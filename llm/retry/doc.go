// 版权所有 2025 DocFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 retry 为单次传输层调用提供分类重试与封顶指数退避。

# 重试决策

可重试性是类型化判别：传输层在边界把失败映射为带 Retryable 标记的
*llm.Error，本包只读取该标记。对注入的自定义传输层抛出的普通 error，
保留一个短语分类器作为回退（timeout / network / rate limit /
too many requests / service unavailable / internal server error /
bad gateway / gateway timeout）。

# 退避

delay = min(InitialDelay × Multiplier^(attempt−1), MaxDelay)，可选 ±25% 抖动。
等待期间监听 context 取消。重试次数耗尽时返回 *ExhaustedError，
封装最后一次底层错误并携带总尝试次数。
*/
package retry
