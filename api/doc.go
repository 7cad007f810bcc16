// Package api 汇集 stageflow serve 暴露的 HTTP API。
//
// # API Overview
//
// 所有业务端点位于 /api/v1 下，响应统一为 handlers.Response：
//
//	GET    /api/v1/workflows              列出声明式定义与内置方法论
//	POST   /api/v1/runs                   启动运行（wait=true 时同步返回结果）
//	GET    /api/v1/runs                   运行历史，可按 workflowId/sessionId/status 过滤
//	GET    /api/v1/runs/active            运行中的工作流
//	GET    /api/v1/runs/{id}              单次运行历史
//	POST   /api/v1/runs/{id}/cancel       取消运行
//	GET    /api/v1/approvals              待处理的审批与反馈请求
//	GET    /api/v1/approvals/{id}
//	POST   /api/v1/approvals/{id}         提交 types.HumanResponse
//	GET    /api/v1/notifications
//	GET    /api/v1/sessions
//	GET    /api/v1/sessions/{id}
//	DELETE /api/v1/sessions/{id}
//
// 运维端点 /health、/healthz、/ready、/version 与 /metrics 不经过限流。
//
// 审批端点只在 hitl.mode 为 queue 时注册。
package api
