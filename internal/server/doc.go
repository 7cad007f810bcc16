// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 stageflow serve 子命令的 HTTP 服务器生命周期。

Manager 封装 net/http.Server：Start 非阻塞启动，Run 阻塞直到 context
取消（通常来自 signal.NotifyContext）后优雅关闭，Shutdown 幂等。
ConfigFrom 把 config.ServerConfig 转换为监听地址与超时设置。
*/
package server
