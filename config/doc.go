// Package config 提供 SiteAgent 的配置管理功能。
//
// 支持从 YAML 文件与环境变量加载配置，
// 覆盖爬取、分块、缓存、检索与各协作服务的参数。
package config
