// 版权所有 2025 DocFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供持久化的内容寻址响应缓存：以输入文本的 SHA-256 作为键，
把既有的 AI 生成结果落盘复用，避免对上游重复计算。

# 概述

缓存是性能优化而非正确性依赖：所有磁盘 I/O 失败（快照缺失、损坏、
写入失败）都记录日志并退化为未命中/空操作，绝不上浮给调用方。

# 生命周期

Uninitialized → Initializing（确保缓存目录存在、加载快照，缺失或损坏
时从空启动）→ Ready（服务 get/set，后台定期保存全量快照）→
Closing（停止定时器、尽力做最终保存）→ Closed。未初始化时的 get/set
触发隐式幂等初始化：并发调用方通过 singleflight 等待同一次进行中的
初始化，而不是竞争重复执行。

# 淘汰

每个条目计算 score = age/maxAge − accessCount×0.1，分数越高越先淘汰
（越旧且越少被访问的条目优先；高频访问可观测地抵消年龄）。一次清扫
淘汰 max(⌈10% 条目⌉, 条目数 − maxEntries + 1) 个最高分条目。
超过 maxAge 的条目在语义上视为不存在：get 观察到即返回未命中并顺带
删除（惰性过期）。

# 持久化

单个 JSON 文档 {entries, stats, lastSaved, version} 整体重写，由单写
者任务串行执行（去抖的异步刷盘 + 定期刷盘 + 关闭时的最终保存），
消除重叠写盘的 last-write-wins 竞争。

# Redis 镜像（可选）

传入 redis 客户端后，Set 同步镜像到 Redis（TTL=maxAge），本地未命中
时回查 Redis 并回填。磁盘快照始终是权威层。
*/
package cache
