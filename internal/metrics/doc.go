// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、工作流、Agent、审批与数据库五个维度。

# 概述

Collector 通过 promauto.With 注册到调用方提供的 Registry（默认为
prometheus.DefaultRegisterer），所有指标按 namespace 隔离。

# 核心类型

  - Collector：实现 workflow.Recorder 与 hitl.Recorder，
    可直接传给 workflow.WithRecorder 与 InterventionManager.SetRecorder。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - Workflow 指标：运行总数与耗时（按 workflow_type/status）、运行中数量。
  - Agent 指标：执行总数与耗时，按 agent_id 分组。
  - 审批指标：审批结果计数与等待时间，按 status 分组。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
