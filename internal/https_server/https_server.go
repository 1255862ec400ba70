// Package https_server 提供本地控制 API 服务器的初始化和配置
// 负责创建 Gin 引擎实例并配置中间件和路由
package https_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mail_assistant_client/internal/config"
	"mail_assistant_client/internal/handler"
	"mail_assistant_client/internal/infrastructure/logger"
	"mail_assistant_client/internal/infrastructure/metrics"
	"mail_assistant_client/internal/infrastructure/middleware"
	"mail_assistant_client/internal/router"
)

// Init 创建配置好的 Gin 引擎
// 配置顺序：
//  1. 创建 Gin 引擎（空白，不含默认中间件）
//  2. 注册日志、恢复、指标中间件
//  3. 配置 CORS 与安全响应头
//  4. 注册业务路由
func Init(cfg *config.Config, handlers *handler.Handlers) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	engine.Use(logger.GinLogger())
	engine.Use(logger.GinRecovery(true))
	engine.Use(metrics.HTTPMetricsMiddleware())

	// 本地界面可能跑在任意端口的 dev server 上
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))
	engine.Use(middleware.SecureHeaders(cfg.Mode != "release"))

	rt := router.NewRouter(handlers, cfg.ControlConfig.Token)
	rt.RegisterRoutes(engine)

	return engine
}

// Server 控制 API 服务器
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen 绑定监听地址，端口为 0 时由系统分配
func Listen(cfg *config.ControlConfig, engine *gin.Engine) (*Server, error) {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Server{
		srv: &http.Server{
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}, nil
}

// Addr 实际监听地址
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve 阻塞处理请求，Shutdown 后返回 nil
func (s *Server) Serve() error {
	zap.L().Info("control api listening", zap.String("addr", s.Addr()))
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
