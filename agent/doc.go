// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package agent 定义流水线中每个工作单元都要实现的 Agent 契约。

# 概述

Agent 暴露身份、指令模板、输出键与 Execute 操作。Execute 永远返回
结构化的 *Result，而不是 panic 或 error：工作函数中的任何失败都在
契约边界内被转换为 Success=false 的结果。

# 核心类型

  - Agent      - 工作单元接口（ID / Name / Instruction / OutputKey / Execute / CanHandle）
  - Context    - 一次调用的执行上下文：会话状态、Invocation 记录、Logger 与 HITL
  - Invocation - 调用记录，包含输入、分支、迭代号与控制动作（Escalate / TransferTo）
  - Result     - 执行结果：输出、摘要、结构化错误、指标与 RequiresReview
  - BaseAgent  - 通用实现：钩子、指令插值、超时、输出键写回、审核判定
  - Registry   - 按 ID 注册 Agent 实例与工厂

# 指令插值

Interpolate 将模板中的 {key} 替换为会话状态中的值：字符串原样插入，
其他值按 JSON 序列化插入，找不到的占位符保持原样。
*/
package agent
