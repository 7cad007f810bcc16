// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 stageflow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitFor / WaitForChannel
  - 数据工具: MustJSON / MustParseJSON / AssertJSONEqual

# 子包

  - testutil/mocks: MockHITL，按脚本回答审批请求并记录调用，支持错误注入
  - testutil/fixtures: 测试 Agent 工厂（回显、失败、阻塞）与预置会话
*/
package testutil
