// Package hitl 提供 Human-in-the-Loop 审批闸门与人工干预能力。
//
// GateRegistry 以声明方式描述每个 Agent 的审批检查点（触发时机、是否必需、
// 审批类型、提示语、超时行为）；InterventionManager 是其运行时对应物，
// 实现 types.HITL，跟踪待处理与已解决的审批请求并保留完整审计历史，
// 具体的人机交互委托给外部 Handler：
//
//   - ConsoleHandler - 命令行交互（yes / no / edit）
//   - QueueHandler   - 将请求挂起在队列中，由 HTTP API 等异步调用 Resolve 解决
package hitl
