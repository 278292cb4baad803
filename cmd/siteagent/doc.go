// 版权所有 2026 SiteAgent Authors.
// 基于 MIT 许可证授权。

/*
Package main 提供 SiteAgent 服务端程序入口。

# 概述

cmd/siteagent 是 SiteAgent 的可执行入口，提供 HTTP API 服务、
数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集与 OpenTelemetry 追踪。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    RequestLogger、MetricsMiddleware、CORS、RateLimiter（基于 IP）、
    APIKeyAuth（X-API-Key，访客提问端点豁免）
  - 组件装配：数据库 → Redis → 抓取 → 向量存储 → 嵌入 → 重排 →
    生成 → 摄取 → 爬取编排 → 提问链路
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭 Metrics → 释放连接 → 遥测落盘
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
