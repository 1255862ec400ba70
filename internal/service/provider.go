// Package service 提供业务逻辑层
// 本文件实现 Service 层的依赖注入和聚合
package service

import (
	"mail_assistant_client/internal/service/account"
	"mail_assistant_client/internal/service/cache"
	"mail_assistant_client/internal/service/chat"
	"mail_assistant_client/internal/service/message"
	"mail_assistant_client/internal/service/session"
)

// Services 聚合所有 Service 实例
// 作为依赖注入的入口，Handler 层通过它访问各个 Service
type Services struct {
	Session SessionService // 连接与登录态
	Message MessageService // 消息
}

// NewServices 创建并注入所有 Service 实例
// 依赖注入流程：
//  1. 接收会话管理器、账号服务与查询缓存
//  2. 创建各个 Service 实例
//  3. 返回 Services 聚合
func NewServices(manager *chat.Manager, accounts *account.Service, queryCache *cache.QueryCache) *Services {
	return &Services{
		Session: session.NewSessionService(manager, accounts, queryCache),
		Message: message.NewMessageService(manager, queryCache),
	}
}
