// 版权所有 2026 SiteAgent Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package rag 实现从页面 Markdown 到对话式回答的核心链路：
确定性分块、意图路由、三层回答缓存、向量检索与置信回退。

# 概述

本包是服务链路的心脏。摄取侧把 Markdown 切分为带结构元数据的
检索单元；服务侧把访客提问依次经过意图路由、三层缓存、向量检索
与置信过滤，最终生成回答或走回退话术。

# 核心类型

  - Chunker：结构优先的确定性分块器，按标题层级与空行切块，
    合并过小片段、按句子拆分超限片段，产出连续编号的
    RetrievalUnit（prose / list / qa 三类）。
  - Router：前缀式意图路由，问候 / 道别 / 闲聊直接短路回复，
    其余一律按站点知识问题处理。
  - AnswerCache：三层回答缓存。第一层精确哈希（归一化问句的
    SHA-256），第二层对最近条目的向量做余弦线性扫描，第三层
    按检索结果同一性哈希在生成前拦截。任何缓存故障都降级为
    未命中，绝不影响主链路。
  - Retriever：向量检索 + 可选重排 + 置信过滤。向量分数与重排
    分数使用不同的置信下限。
  - Pipeline：把上述组件与生成、历史、台账协作方串成完整链路，
    每个阶段每次提问至多执行一次。

# 服务链路

	路由短路 → 精确缓存 → 向量化 → 语义缓存 → 检索
	  → 响应同一性缓存 → 生成（或回退）

回退路径绝不调用生成服务，回答由话术模板与最佳低置信线索拼装，
同时把问句写入未回答台账供运营补齐知识。

# 向量存储

VectorStore 抽象支持两种实现：MemoryVectorStore 用于测试与
单机部署，PineconeStore 对接托管向量索引。命名空间即代理 ID，
天然隔离多代理数据。

# 使用示例

	chunker := rag.NewChunker(rag.DefaultChunkerConfig(), tokenizer, logger)
	units := chunker.Chunk(markdown, sourceURL, pageTitle)

	pipeline := rag.NewPipeline(router, answerCache, embedder,
		retriever, generator, history, ledger, logger)
	resp := pipeline.Query(ctx, rag.QueryRequest{
		AgentID: agentID,
		Query:   "What is your pricing?",
	})
*/
package rag
