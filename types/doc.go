// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 stageflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、workflow、state、
hitl 与 api 等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Stage             - 研究流水线阶段枚举及其本地化标签
  - StateKeys         - 会话状态键约定（含 temp: 前缀）
  - ApprovalRequest   - 人工审批请求（类型、选项、超时与超时行为）
  - HumanResponse     - 人工回复（approved / feedback / modifications）
  - HITL              - 人在回路接口（RequestApproval / CollectFeedback / Notify）
  - Error / ErrorCode - 结构化错误体系，含 HTTP 状态码与 Retryable 标记
*/
package types
