// Package app 负责组装客户端的各个组件并管理其生命周期
package app

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mail_assistant_client/internal/config"
	myredis "mail_assistant_client/internal/dao/redis"
	"mail_assistant_client/internal/handler"
	"mail_assistant_client/internal/https_server"
	"mail_assistant_client/internal/service"
	"mail_assistant_client/internal/service/account"
	"mail_assistant_client/internal/service/cache"
	"mail_assistant_client/internal/service/chat"
	"mail_assistant_client/pkg/util/snowflake"
)

const shutdownTimeout = 5 * time.Second

// App 客户端实例，持有会话管理器等全部组件
type App struct {
	cfg   *config.Config
	log   *zap.Logger
	store myredis.AsyncCacheService

	Cache    *cache.QueryCache
	Account  *account.Service
	Manager  *chat.Manager
	Services *service.Services

	engine   *gin.Engine
	server   *https_server.Server
	serveErr chan error
}

// Option 测试时替换依赖
type Option func(*options)

type options struct {
	managerOpts []chat.Option
}

// WithManagerOptions 透传给会话管理器的选项
func WithManagerOptions(opts ...chat.Option) Option {
	return func(o *options) {
		o.managerOpts = append(o.managerOpts, opts...)
	}
}

// New 按依赖顺序组装：存储 -> 账号 -> 查询缓存 -> 会话管理器 -> 业务服务 -> 控制 API
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := zap.L().Named("app")
	snowflake.Init(cfg.SnowflakeConfig.MachineID)

	store, err := myredis.New(ctx, &cfg.RedisConfig, &cfg.StoreConfig)
	if err != nil {
		return nil, err
	}

	accounts, err := account.NewAccountService(store, cfg.AuthConfig.StorageKey, cfg.ExpiryLeeway.Duration)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	accounts.WithFallbackToken(cfg.AuthConfig.Token)

	queryCache := cache.NewQueryCache(store)
	if err := queryCache.Hydrate(ctx); err != nil {
		// 本地数据损坏不影响启动，会话列表从空开始
		log.Warn("hydrate chat cache failed", zap.Error(err))
	}

	managerOpts := append([]chat.Option{chat.WithLogger(zap.L())}, o.managerOpts...)
	manager := chat.NewManager(chat.ConfigFrom(cfg), accounts, queryCache, managerOpts...)
	services := service.NewServices(manager, accounts, queryCache)

	a := &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		Cache:    queryCache,
		Account:  accounts,
		Manager:  manager,
		Services: services,
	}

	if cfg.ControlConfig.Enabled {
		if err := handler.InitTrans("zh"); err != nil {
			log.Warn("init validator translations failed", zap.Error(err))
		}
		a.engine = https_server.Init(cfg, handler.NewHandlers(services))
		a.server, err = https_server.Listen(&cfg.ControlConfig, a.engine)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return a, nil
}

// Run 启动事件循环与控制 API；本地有 token 时自动建连
func (a *App) Run(ctx context.Context) error {
	a.Manager.Start()

	if a.server != nil {
		a.serveErr = make(chan error, 1)
		go func() {
			a.serveErr <- a.server.Serve()
		}()
	}

	if !a.cfg.EnableWebSocket {
		a.log.Info("websocket disabled by config")
		return nil
	}
	if a.Account.HasToken(ctx) {
		a.Manager.Connect()
	} else {
		a.log.Info("no token stored, waiting for login")
	}
	return nil
}

// ControlAddr 控制 API 的实际监听地址，未启用时为空
func (a *App) ControlAddr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

// Close 按与创建相反的顺序释放资源
func (a *App) Close() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, a.server.Shutdown(ctx))
		cancel()
		if a.serveErr != nil {
			errs = append(errs, <-a.serveErr)
		}
	}

	// Dispose 把未发出的消息标记为 failed，这些写入需要在存储关闭前提交
	a.Manager.Dispose()
	errs = append(errs, a.store.Close())

	a.log.Info("client stopped")
	return errors.Join(errs...)
}
