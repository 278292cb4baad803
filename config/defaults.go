// =============================================================================
// 📦 SiteAgent 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Crawler:     DefaultCrawlerConfig(),
		Chunking:    DefaultChunkingConfig(),
		AnswerCache: DefaultAnswerCacheConfig(),
		Retrieval:   DefaultRetrievalConfig(),
		Scrape:      DefaultScrapeConfig(),
		Embedding:   DefaultEmbeddingConfig(),
		Rerank:      DefaultRerankConfig(),
		Generation:  DefaultGenerationConfig(),
		Vector:      DefaultVectorConfig(),
		Redis:       DefaultRedisConfig(),
		Database:    DefaultDatabaseConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultCrawlerConfig 返回默认爬取配置
func DefaultCrawlerConfig() CrawlerConfig {
	return CrawlerConfig{
		MaxPages:    100,
		MaxDepth:    3,
		BatchSize:   3,
		PageTimeout: 20 * time.Second,
	}
}

// DefaultChunkingConfig 返回默认分块配置
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:      512,
		MinChunkSize:   50,
		TokenizerModel: "",
	}
}

// DefaultAnswerCacheConfig 返回默认回答缓存配置
func DefaultAnswerCacheConfig() AnswerCacheConfig {
	return AnswerCacheConfig{
		Enabled:           true,
		TTL:               24 * time.Hour,
		SemanticThreshold: 0.95,
		SemanticIndexSize: 100,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:            8,
		ConfidenceFloor: 0.45,
		RerankFloor:     0.30,
		RerankEnabled:   false,
	}
}

// DefaultScrapeConfig 返回默认抓取配置
func DefaultScrapeConfig() ScrapeConfig {
	return ScrapeConfig{
		Provider: "local",
		Timeout:  20 * time.Second,
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// DefaultRerankConfig 返回默认重排配置
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		Provider: "jina",
		Timeout:  30 * time.Second,
	}
}

// DefaultGenerationConfig 返回默认生成配置
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   1024,
		Timeout:     60 * time.Second,
	}
}

// DefaultVectorConfig 返回默认向量存储配置
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Provider: "memory",
		Timeout:  30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "siteagent",
		Password:        "",
		Name:            "siteagent.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "siteagent",
		SampleRate:   1.0,
	}
}
