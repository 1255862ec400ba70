package redis

import (
	"context"
	"strconv"
	"time"

	"mail_assistant_client/internal/config"
	"mail_assistant_client/pkg/constants"
	"mail_assistant_client/pkg/errorx"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// New 按配置创建存储
// 开启 Redis 时连接并 Ping，否则使用本地 SQLite 文件，文件路径为空时退化为进程内存储
func New(ctx context.Context, conf *config.RedisConfig, storeConf *config.StoreConfig) (AsyncCacheService, error) {
	if conf == nil || !conf.Enabled {
		if storeConf == nil || storeConf.Path == "" {
			zap.L().Info("redis disabled and no store path, using in-memory store")
			return NewMemoryCache(), nil
		}
		return NewSQLiteCache(ctx, storeConf.Path, constants.CACHE_WORKER_NUM, constants.CACHE_TASK_CHAN_SIZE)
	}

	addr := conf.Host + ":" + strconv.Itoa(conf.Port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     conf.Password,
		DB:           conf.Db,
		PoolSize:     10,
		MinIdleConns: constants.CACHE_WORKER_NUM,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "redis ping %s", addr)
	}

	zap.L().Info("redis connected", zap.String("addr", addr), zap.Int("db", conf.Db))
	return NewRedisCache(client, constants.CACHE_WORKER_NUM, constants.CACHE_TASK_CHAN_SIZE), nil
}
