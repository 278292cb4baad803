// Package api provides OpenAPI/Swagger documentation for the SiteAgent API.
//
// This package contains the request/response types and related documentation
// for the SiteAgent HTTP API.
//
// # API Overview
//
// SiteAgent provides a RESTful API for:
//   - Website crawling (start, batch processing, status, cleanup)
//   - Knowledge ingestion (chunking, embedding, reindexing)
//   - Visitor queries with routing, answer caching and fallback
//   - Unanswered-question ledger and Q&A suggestions
//   - Health monitoring and metrics
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Generating Documentation
//
// To regenerate Swagger documentation using swag:
//
//	swag init -g cmd/siteagent/main.go -o api --parseDependency --parseInternal
package api
