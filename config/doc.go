// Package config 提供 StageFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → STAGEFLOW_ 环境变量 的顺序叠加，
// 覆盖审批服务器、会话存储、人工介入、工作流引擎、日志、遥测与指标。
package config
