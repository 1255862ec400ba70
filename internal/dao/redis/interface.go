// Package redis 定义客户端本地持久化的键值存储接口
// Service 层依赖此接口而非具体实现：开启 Redis 时使用 RedisCache，否则使用本地文件 SQLiteCache
package redis

import (
	"context"
	"time"
)

// CacheService 键值存储接口
type CacheService interface {
	// Set 设置键值对，ttl 为 0 表示不过期
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Get 获取键对应的值（键不存在返回空字符串和 nil）
	Get(ctx context.Context, key string) (string, error)
	// GetOrError 获取键对应的值（键不存在返回 CodeNotFound 错误）
	GetOrError(ctx context.Context, key string) (string, error)
	// Delete 删除键（如果存在）
	Delete(ctx context.Context, key string) error
	// DeleteByPattern 删除匹配 glob 模式的所有键
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AsyncCacheService 带异步写入能力的存储
// 查询缓存的落盘走 SubmitTask，不阻塞调用方
type AsyncCacheService interface {
	CacheService
	// SubmitTask 提交异步任务
	SubmitTask(action func())
	// Close 等待已提交的任务执行完毕并释放资源
	Close() error
}
