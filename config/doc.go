// Package config 提供 DocFlow 的配置管理功能。
//
// 包含配置加载、默认值、校验与日志初始化。
// 支持从 YAML 文件与环境变量加载配置，
// 优先级为 默认值 → 文件 → 环境变量。
package config
