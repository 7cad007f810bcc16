// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package persistence 提供会话状态存储及其可插拔的持久化后端。

# 概述

一次工作流运行共享一个 Session：持久键值表加上以 "temp:" 前缀寻址的
临时表。Manager 负责创建（或从后端恢复）、持久化与删除会话；
SessionStore 是快照的持久化契约，Load 在会话不存在时返回 (nil, nil)。

# 后端

  - memory   - 进程内 map，仅用于开发与测试
  - file     - 每个会话一个 JSON 文件：<BaseDir>/sessions/<id>.json，原子写入
  - redis    - JSON 快照 + 会话 ID 索引集合，适合多实例部署
  - database - 通过 GORM 写入 stageflow_sessions 表（postgres / mysql / sqlite）

# 并发

Session 内部使用读写锁保证内存安全；同一键的并发写入按最后写入为准，
不做冲突检测。
*/
package persistence
