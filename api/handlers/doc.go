// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 stageflow HTTP API 的请求处理器实现。

# 核心类型

  - WorkflowHandler  - 启动运行、查询历史、列出运行中工作流并取消
  - ApprovalHandler  - 暴露 hitl.QueueHandler 中的待审批请求并提交人工答复
  - SessionHandler   - 会话快照的列表、查询与删除
  - HealthHandler    - 存活与就绪探针，RegisterCheck 注册 PingCheck
  - Response         - 统一 JSON 响应结构（success + data + error + timestamp + request_id）
  - ResponseWriter   - 包装 http.ResponseWriter 以捕获状态码与字节数

# 错误映射

领域错误经 toAPIError 转为 types.Error：定义或 Agent 不存在为 404，
结构校验失败为 400，其余为 500。所有 Handler 均使用 Go 1.22 的
ServeMux 路由模式，路径参数通过 r.PathValue 读取。
*/
package handlers
