// Package router 提供控制 API 的路由注册
// 本文件定义会话与消息相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterChatRoutes 注册会话与消息路由
func (rt *Router) RegisterChatRoutes(rg *gin.RouterGroup) {
	chatGroup := rg.Group("/chats")
	{
		chatGroup.GET("", rt.handlers.Message.ListChats)                                         // 会话列表
		chatGroup.POST("/messages", rt.handlers.Message.NewConversation)                         // 发送消息（可新建会话）
		chatGroup.DELETE("/:chat_id", rt.handlers.Message.DeleteChat)                            // 删除会话
		chatGroup.POST("/:chat_id/join", rt.handlers.Message.JoinChat)                           // 切换当前会话
		chatGroup.GET("/:chat_id/messages", rt.handlers.Message.GetMessages)                     // 会话消息
		chatGroup.POST("/:chat_id/messages", rt.handlers.Message.SendMessage)                    // 向会话发送消息
		chatGroup.POST("/:chat_id/messages/:message_id/retry", rt.handlers.Message.RetryMessage) // 重发失败消息
	}
}
