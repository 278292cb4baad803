// 版权所有 2026 SiteAgent Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、爬取、提问、回答缓存、摄取与数据库六大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数与耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 爬取指标：队列条目终态计数、批次耗时、限速熔断计数。
  - 提问指标：提问总数（按 intent/outcome/cache_layer）、
    端到端耗时、检索与生成耗时、Token 用量。
  - 回答缓存指标：按层（1/2/3）的命中计数与整体未命中计数。
  - 摄取指标：页面终态计数与检索单元写入计数。
  - 数据库指标：活跃/空闲连接数 Gauge，按 database 分组。
*/
package metrics
