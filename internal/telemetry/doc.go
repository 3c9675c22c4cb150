// 版权所有 2025 DocFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 telemetry 提供 DocFlow 的可观测性装配：OpenTelemetry SDK 初始化
与基于 Prometheus 的遥测回调实现。

# 概述

本包包含两部分。Init/Shutdown 封装 OTel SDK 的 TracerProvider 与
MeterProvider 配置，遥测禁用时保持 noop，不连接任何外部服务。
Collector 实现 llm.Tracker 回调接口，把缓存、错误与并发采样转换为
Prometheus 指标。

# 核心类型

  - Providers：持有 SDK provider，Shutdown 时统一刷写并关闭导出器。
  - Collector：llm.Tracker 的 Prometheus 实现，使用 promauto 自动
    注册机制，所有指标按 namespace 隔离。

# 主要能力

  - 缓存指标：命中/未命中/淘汰计数与当前体积 Gauge。
  - 错误指标：按 kind 分组的错误计数。
  - 并发指标：在途请求、准入容量与等待队列长度 Gauge。
*/
package telemetry
