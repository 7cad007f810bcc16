// Copyright 2026 AgentFlow Authors
// Use of this source code is governed by the project license.

/*
# 概述

包 declarative 从定义目录加载 YAML/JSON 形式的 Agent 与 Workflow 定义，
校验后转换为 agent.Config 与 workflow.Definition，并提供缓存与保存能力。

# 目录结构

	<dir>/agents/<id>.yaml|yml|json
	<dir>/workflows/<id>.yaml|yml|json

# 核心类型

  - Loader - 加载、缓存、保存定义；LoadAllAgents 会跳过无效文件，
    并通过 errors.Join 汇总错误
  - AgentDefinition - Agent 文件格式，timeout 以毫秒表示
  - AgentFactory - 校验定义并通过 agent.Registry 实例化 Agent
  - ValidationError - 结构校验失败，可用 errors.As 与解析错误区分

# 典型用法

	loader := declarative.NewLoader("./config", logger)
	configs, err := loader.LoadAllAgents()
	def, err := loader.LoadWorkflow("default-research")

# 默认值

  - timeout: 300000 ms
  - maxRetries: 3
  - version: "1.0.0"
  - skills[].enabled: true
*/
package declarative
