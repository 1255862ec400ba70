// Package handler 提供本地控制 API 的请求处理器
// 本文件定义 Handler 聚合结构和构造函数
package handler

import (
	"mail_assistant_client/internal/service"
)

// Handlers 聚合所有 Handler 实例
// Router 层通过此结构访问各个 Handler
type Handlers struct {
	Session *SessionHandler
	Message *MessageHandler
}

// NewHandlers 创建并注入所有 Handler 实例
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Session: NewSessionHandler(svc.Session),
		Message: NewMessageHandler(svc.Message),
	}
}
