// 版权所有 2026 SiteAgent Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，支持连接池、健康检查与
JSON 序列化。

# 概述

本包封装 go-redis 客户端，为上层回答缓存提供统一的读写接口。
Manager 负责连接生命周期管理，包括初始化、健康检查与优雅关闭。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 Get/Set/Delete/Exists/Expire/Incr 等基础操作，
    GetJSON/SetJSON 便捷序列化方法，以及有序集合操作
    （ZAdd/ZRevRange/ZRemRangeByRank）支撑语义索引的
    按时间裁剪。
  - Config：缓存配置，包含地址、密码、连接池大小、默认 TTL
    与健康检查间隔等参数。

# 主要能力

  - 键值读写：支持字符串与 JSON 两种模式的缓存存取。
  - 有序集合：按时间戳维护近期条目索引，支持容量裁剪。
  - 模式删除：DeleteByPattern 通过 SCAN 批量清理某一前缀下的键。
  - 连接池管理：通过 PoolSize 与 MinIdleConns 控制连接复用。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 错误语义：提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
