package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/siteagent/api/handlers"
	"github.com/BaSui01/siteagent/config"
	"github.com/BaSui01/siteagent/crawler"
	"github.com/BaSui01/siteagent/embedding"
	"github.com/BaSui01/siteagent/generation"
	"github.com/BaSui01/siteagent/ingest"
	"github.com/BaSui01/siteagent/internal/cache"
	"github.com/BaSui01/siteagent/internal/metrics"
	"github.com/BaSui01/siteagent/internal/server"
	"github.com/BaSui01/siteagent/internal/telemetry"
	"github.com/BaSui01/siteagent/rag"
	"github.com/BaSui01/siteagent/rerank"
	"github.com/BaSui01/siteagent/scrape"
	"github.com/BaSui01/siteagent/store"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 SiteAgent 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 基础设施
	store        *store.Store
	cacheManager *cache.Manager
	otel         *telemetry.Providers

	// Handlers
	healthHandler    *handlers.HealthHandler
	crawlHandler     *handlers.CrawlHandler
	queryHandler     *handlers.QueryHandler
	knowledgeHandler *handlers.KnowledgeHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("siteagent", s.logger)

	// 2. 初始化组件与 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 3. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 4. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initHandlers 组装爬取、摄取与提问链路并初始化所有 handlers
func (s *Server) initHandlers() error {
	// 数据库（爬取队列、知识页面、未回答台账）
	st, err := store.Open(store.Config{
		Driver:          s.cfg.Database.Driver,
		DSN:             s.cfg.Database.DSN(),
		MaxOpenConns:    s.cfg.Database.MaxOpenConns,
		MaxIdleConns:    s.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: s.cfg.Database.ConnMaxLifetime,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st

	if err := st.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}

	// Redis（回答缓存与会话历史）
	cacheManager, err := cache.NewManager(cache.Config{
		Addr:         s.cfg.Redis.Addr,
		Password:     s.cfg.Redis.Password,
		DB:           s.cfg.Redis.DB,
		PoolSize:     s.cfg.Redis.PoolSize,
		MinIdleConns: s.cfg.Redis.MinIdleConns,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	s.cacheManager = cacheManager

	answers := rag.NewAnswerCache(cacheManager, rag.AnswerCacheConfig{
		Enabled:           s.cfg.AnswerCache.Enabled,
		TTL:               s.cfg.AnswerCache.TTL,
		SemanticThreshold: s.cfg.AnswerCache.SemanticThreshold,
		SemanticIndexSize: s.cfg.AnswerCache.SemanticIndexSize,
	}, s.logger)

	history := rag.NewConversationHistory(cacheManager, rag.DefaultConversationHistoryConfig(), s.logger)

	// 抓取服务
	scraper, err := scrape.New(scrape.Config{
		Provider: s.cfg.Scrape.Provider,
		APIKey:   s.cfg.Scrape.APIKey,
		BaseURL:  s.cfg.Scrape.BaseURL,
		Timeout:  s.cfg.Scrape.Timeout,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create scraper: %w", err)
	}

	// 向量存储
	vectors, err := s.newVectorStore()
	if err != nil {
		return err
	}

	// 嵌入服务
	embedder, err := embedding.New(embedding.Config{
		Provider: s.cfg.Embedding.Provider,
		APIKey:   s.cfg.Embedding.APIKey,
		BaseURL:  s.cfg.Embedding.BaseURL,
		Model:    s.cfg.Embedding.Model,
		Timeout:  s.cfg.Embedding.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}

	// 重排服务（可选）
	var reranker rag.Reranker
	if s.cfg.Retrieval.RerankEnabled {
		provider, rerankErr := rerank.New(rerank.Config{
			Provider: s.cfg.Rerank.Provider,
			APIKey:   s.cfg.Rerank.APIKey,
			BaseURL:  s.cfg.Rerank.BaseURL,
			Model:    s.cfg.Rerank.Model,
			Timeout:  s.cfg.Rerank.Timeout,
		})
		if rerankErr != nil {
			return fmt.Errorf("failed to create rerank provider: %w", rerankErr)
		}
		reranker = rerank.Adapter{Provider: provider}
	}

	// 生成服务
	generator := generation.NewProvider(generation.Config{
		APIKey:      s.cfg.Generation.APIKey,
		BaseURL:     s.cfg.Generation.BaseURL,
		Model:       s.cfg.Generation.Model,
		Temperature: float32(s.cfg.Generation.Temperature),
		MaxTokens:   s.cfg.Generation.MaxTokens,
		Timeout:     s.cfg.Generation.Timeout,
	}, s.logger)

	// 分块与摄取
	chunker := rag.NewChunker(rag.ChunkerConfig{
		ChunkSize:    s.cfg.Chunking.ChunkSize,
		MinChunkSize: s.cfg.Chunking.MinChunkSize,
	}, rag.NewTokenizer(s.cfg.Chunking.TokenizerModel, s.logger), s.logger)

	ingestor := ingest.NewIngestor(st, chunker, embedder, vectors, answers, s.logger)

	// 爬取编排
	orchestrator := crawler.NewOrchestrator(st, scraper, answers, crawler.Config{
		MaxPages:  s.cfg.Crawler.MaxPages,
		MaxDepth:  s.cfg.Crawler.MaxDepth,
		BatchSize: s.cfg.Crawler.BatchSize,
	}, s.logger)

	// 提问链路：路由 → 三层缓存 → 检索 → 生成或回退
	retriever := rag.NewRetriever(vectors, reranker, rag.RetrievalConfig{
		TopK:            s.cfg.Retrieval.TopK,
		ConfidenceFloor: s.cfg.Retrieval.ConfidenceFloor,
		RerankFloor:     s.cfg.Retrieval.RerankFloor,
		RerankEnabled:   s.cfg.Retrieval.RerankEnabled,
	}, s.logger)

	pipeline := rag.NewPipeline(
		rag.NewRouter(), answers, embedder, retriever, generator,
		history, st.Unanswered, s.logger,
	)

	// 健康检查
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", st.Ping))
	s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", cacheManager.Ping))

	s.crawlHandler = handlers.NewCrawlHandler(orchestrator, s.metricsCollector, s.logger)
	s.queryHandler = handlers.NewQueryHandler(pipeline, history, s.metricsCollector, s.logger)
	s.knowledgeHandler = handlers.NewKnowledgeHandler(st, ingestor, s.metricsCollector, s.logger)

	s.logger.Info("Handlers initialized",
		zap.String("scrape_provider", scraper.Name()),
		zap.String("embedding_provider", embedder.Name()),
		zap.String("vector_provider", s.cfg.Vector.Provider),
		zap.Bool("rerank_enabled", s.cfg.Retrieval.RerankEnabled),
	)
	return nil
}

// newVectorStore 按配置创建向量存储
func (s *Server) newVectorStore() (rag.VectorStore, error) {
	switch s.cfg.Vector.Provider {
	case "pinecone":
		return rag.NewPineconeStore(rag.PineconeConfig{
			APIKey:  s.cfg.Vector.APIKey,
			Index:   s.cfg.Vector.Index,
			BaseURL: s.cfg.Vector.BaseURL,
			Timeout: s.cfg.Vector.Timeout,
		}, s.logger), nil
	case "memory", "":
		// 进程内索引，重启后由 reindex 重建
		return rag.NewMemoryVectorStore(s.logger), nil
	default:
		return nil, fmt.Errorf("unsupported vector provider: %s", s.cfg.Vector.Provider)
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 访客端点（挂件调用，跳过 API Key 认证）
	// ========================================
	mux.HandleFunc("/api/v1/query", s.queryHandler.HandleQuery)

	// ========================================
	// 管理端点：爬取与知识库
	// ========================================
	mux.HandleFunc("/api/v1/crawl/start", s.crawlHandler.HandleStart)
	mux.HandleFunc("/api/v1/crawl/batch", s.crawlHandler.HandleBatch)
	mux.HandleFunc("/api/v1/crawl/status", s.crawlHandler.HandleStatus)
	mux.HandleFunc("/api/v1/crawl/cleanup", s.crawlHandler.HandleCleanup)

	mux.HandleFunc("/api/v1/knowledge/pages", s.knowledgeHandler.HandlePages)
	mux.HandleFunc("/api/v1/knowledge/summary", s.knowledgeHandler.HandleSummary)
	mux.HandleFunc("/api/v1/knowledge/process", s.knowledgeHandler.HandleProcess)
	mux.HandleFunc("/api/v1/knowledge/reindex", s.knowledgeHandler.HandleReindex)
	mux.HandleFunc("/api/v1/knowledge/unanswered", s.knowledgeHandler.HandleUnanswered)
	mux.HandleFunc("/api/v1/knowledge/suggestions", s.knowledgeHandler.HandleSuggestions)
	mux.HandleFunc("/api/v1/knowledge/qa", s.knowledgeHandler.HandleQAList)
	mux.HandleFunc("/api/v1/knowledge/qa/save", s.knowledgeHandler.HandleQASave)
	mux.HandleFunc("/api/v1/knowledge/qa/delete", s.knowledgeHandler.HandleQADelete)

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/ready", "/readyz", "/version", "/metrics", "/api/v1/query"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                      // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭基础设施连接
	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("Cache manager close error", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Store close error", zap.Error(err))
		}
	}

	// 5. 关闭遥测
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
