// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 stageflow 命令行程序入口。

# 概述

cmd/stageflow 装配会话存储、声明式定义、人工审批与工作流引擎，
以子命令的形式运行研究流程或提供 HTTP API。配置按
默认值 → YAML → STAGEFLOW_* 环境变量的顺序加载。

# 核心类型

  - App          - 一次进程生命周期内的全部组件（存储、注册表、HITL、引擎）
  - Middleware   - HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：run、sessions、validate、serve、health、version
  - 模板 Agent：没有专用工厂的声明式 agent 由模板工厂构建，
    产出插值后的指令草稿并推进会话所处的研究阶段
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing，/api/ 下额外启用基于 IP 的 RateLimiter
  - 定义热加载：engine.watch_definitions 开启时轮询定义目录并重新注册 agent
  - 优雅关闭：SIGINT/SIGTERM 取消根 context，进行中的异步运行随之取消
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
