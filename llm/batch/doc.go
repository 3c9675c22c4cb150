// 版权所有 2025 DocFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 batch 提供批量补全的分块派发与按模型分组。

# Coordinator

输入是有序请求列表。先对全部请求做结构校验（结构错误同步中止整个
批次调用，不发出任何网络请求），再按块大小切分；每块创建一次性的
准入信号量并发派发，单项失败转换为对应下标的 nil 结果并记录警告，
不影响同块其他请求。块间插入延迟（最后一块之后没有）。输出长度恒等
于输入长度，results[i] 对应 requests[i]，与完成顺序无关。批次不是
原子的：调用方必须容忍失败项的 nil 占位。

# Grouper

按键函数（默认取请求模型名，空时用配置的默认模型）把请求分组并保留
原始下标，每组按 MaxBatchSize 再切分后交给 Coordinator，结果跨组按
原始下标重组。整个子批次调用抛错时，该子批次的所有请求在输出中标记
为 nil —— 比 Coordinator 的单项粒度更粗，因为分组器无法区分失败子
批次内部究竟哪一项失败。
*/
package batch
