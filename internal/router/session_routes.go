// Package router 提供控制 API 的路由注册
// 本文件定义连接与登录态相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterSessionRoutes 注册连接相关路由
func (rt *Router) RegisterSessionRoutes(rg *gin.RouterGroup) {
	sessionGroup := rg.Group("/session")
	{
		sessionGroup.POST("/connect", rt.handlers.Session.Connect)       // 手动建连
		sessionGroup.POST("/disconnect", rt.handlers.Session.Disconnect) // 手动断开
		sessionGroup.POST("/login", rt.handlers.Session.Login)           // 保存 token 并建连
		sessionGroup.POST("/logout", rt.handlers.Session.Logout)         // 退出并清除本地数据
	}
}
