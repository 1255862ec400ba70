// Package router 提供控制 API 的路由注册
// 本文件是路由注册的入口，聚合所有子模块的路由
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mail_assistant_client/internal/handler"
	"mail_assistant_client/internal/infrastructure/middleware"
)

// Router 路由管理器，持有 Handler 聚合
type Router struct {
	handlers     *handler.Handlers
	controlToken string
}

// NewRouter 创建路由管理器
// controlToken 非空时业务路由要求 Bearer 认证
func NewRouter(handlers *handler.Handlers, controlToken string) *Router {
	return &Router{handlers: handlers, controlToken: controlToken}
}

// RegisterRoutes 注册所有路由
// /metrics 不需要认证，供本机 Prometheus 抓取
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/", middleware.ControlToken(rt.controlToken))
	api.GET("/status", rt.handlers.Session.Status) // 连接状态
	rt.RegisterSessionRoutes(api)                  // 连接与登录态
	rt.RegisterChatRoutes(api)                     // 会话与消息
}
