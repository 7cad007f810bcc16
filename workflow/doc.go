// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供声明式多阶段 Agent 工作流的编排与执行引擎。

# 概述

Definition 描述一个工作流：类型、成员列表（Agent 引用或嵌套工作流）、
配置块以及可选的合并 Agent。Engine 将 Definition 解析为可执行的
Workflow，在会话状态之上运行，并在每次运行结束后持久化会话。

# 执行策略

  - Sequential - 成员依次执行，前一成员的输出作为下一成员的输入；
    支持审批闸门、escalate 提前结束与 transfer 转交
  - Parallel   - 成员并发执行，所有分支结束后再汇总或调用合并 Agent
  - Loop       - 整个成员列表按迭代重复，直到条件满足、escalate 或
    达到 MaxIterations
  - Hybrid     - 以顺序方式执行，成员可以是嵌套工作流

# 取消

取消通过 context.Context 传递。策略在步骤之间检查 ctx.Err()，
返回已累积的部分结果；正在执行的并行分支不会被抢占。
Engine.CancelWorkflow 会取消对应运行的 context。

# 执行路径

ExecutionPath 记录成员 ID 与合成标记：transfer:X、parallel_start、
branch:X、parallel_complete、merge:X、iteration_N、escalate_exit、
condition_exit、max_iterations_reached。
*/
package workflow
