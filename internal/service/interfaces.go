// Package service 定义业务层接口
// 本文件定义所有 Service 接口，供 Handler 层调用
// 接口设计遵循依赖倒置原则，便于测试和解耦
package service

import (
	"context"

	"mail_assistant_client/internal/dto/request"
	"mail_assistant_client/internal/dto/respond"
	"mail_assistant_client/internal/model"
)

// SessionService 连接与登录态接口
type SessionService interface {
	// Status 当前连接状态
	Status(ctx context.Context) respond.StatusRespond
	// Connect 手动建连，没有可用 token 时返回 CodeUnauthorized
	Connect(ctx context.Context) error
	// Disconnect 手动断开，不再自动重连
	Disconnect(ctx context.Context)
	// Login 保存服务端签发的 token 并建连
	Login(ctx context.Context, req request.LoginRequest) (*model.UserProfile, error)
	// Logout 断开并清除本地数据
	Logout(ctx context.Context) error
}

// MessageService 消息业务接口
// 写操作先更新查询缓存，再交给会话管理器
type MessageService interface {
	// SendMessage 发送消息，chatID 为空时新建会话
	SendMessage(ctx context.Context, chatID, text string) (*model.Message, error)
	// RetryMessage 重发失败的消息
	RetryMessage(ctx context.Context, chatID, messageID string) (*model.Message, error)
	// JoinChat 切换当前会话
	JoinChat(ctx context.Context, chatID string) error
	// DeleteChat 删除会话
	DeleteChat(ctx context.Context, chatID string) error
	// ListChats 会话列表
	ListChats(ctx context.Context) []model.Chat
	// GetMessages 会话消息
	GetMessages(ctx context.Context, chatID string) ([]model.Message, error)
}
