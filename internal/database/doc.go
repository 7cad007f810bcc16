// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责打开会话存储所用的关系型数据库，并管理其连接池。

# 概述

Open 根据 config.DatabaseConfig 选择 GORM dialector（postgres、mysql
或纯 Go 实现的 sqlite），随后交给 PoolManager 统一配置连接池。
persistence.DBSessionStore 通过 PoolManager.DB() 获取 *gorm.DB。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close()。后台健康检查定时探活，并通过 StatsRecorder
    上报连接数。
  - PoolConfig：连接池配置，PoolConfigFrom 从应用配置转换。
  - StatsRecorder：metrics.Collector 实现该接口。
*/
package database
