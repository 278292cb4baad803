// 版权所有 2026 SiteAgent Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 提供 SiteAgent HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 SiteAgent 所有 HTTP 端点的请求处理逻辑，
包括站点爬取、访客提问、知识库管理、健康检查以及统一的响应/
错误处理。所有 Handler 均遵循标准 net/http 接口，通过 Swagger
注解生成 API 文档。

# 核心类型

  - CrawlHandler     — 爬取编排：启动、批次处理、状态查询、清理
  - QueryHandler     — 访客提问：路由、三层缓存、检索、生成或回退
  - KnowledgeHandler — 知识库：页面列表、摄取、重建索引、未回答问题、问答建议与人工问答对
  - HealthHandler    — 服务健康检查（/health, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（Database、Redis 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 指标回填：爬取批次、提问结果、缓存命中与摄取统计在 Handler 层统一上报
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
