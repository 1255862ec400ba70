// Package session 组合会话管理器与账号服务，对外提供连接控制与登录态管理
package session

import (
	"context"

	"go.uber.org/zap"

	"mail_assistant_client/internal/dto/request"
	"mail_assistant_client/internal/dto/respond"
	"mail_assistant_client/internal/model"
	"mail_assistant_client/internal/service/chat"
)

// Manager 会话管理器
type Manager interface {
	Connect()
	Disconnect()
	Status() chat.Snapshot
}

// Accounts 本地登录态
type Accounts interface {
	Token(ctx context.Context) (string, error)
	Login(ctx context.Context, token string, profile model.UserProfile) (*model.UserProfile, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*model.UserProfile, error)
}

// ChatCache 退出登录时需要清空的查询缓存
type ChatCache interface {
	Clear(ctx context.Context) error
}

// sessionService 会话业务逻辑实现
// 通过构造函数注入管理器、账号和缓存依赖
type sessionService struct {
	manager  Manager
	accounts Accounts
	cache    ChatCache
}

// NewSessionService 构造函数，注入所有依赖
func NewSessionService(manager Manager, accounts Accounts, cache ChatCache) *sessionService {
	return &sessionService{
		manager:  manager,
		accounts: accounts,
		cache:    cache,
	}
}

// Status 当前连接状态与登录用户
func (s *sessionService) Status(ctx context.Context) respond.StatusRespond {
	snap := s.manager.Status()
	rsp := respond.StatusRespond{
		State:         snap.State.String(),
		Attempts:      snap.Attempts,
		CurrentChatID: snap.CurrentChatID,
		QueueLen:      snap.QueueLen,
	}
	if snap.LastError != nil {
		rsp.LastError = snap.LastError.Error()
	}
	if user, err := s.accounts.CurrentUser(ctx); err == nil && user != nil {
		rsp.UserEmail = user.Email
	}
	return rsp
}

// Connect 手动建连
// 先检查 token，避免无 token 时进入 error 状态
func (s *sessionService) Connect(ctx context.Context) error {
	if _, err := s.accounts.Token(ctx); err != nil {
		return err
	}
	s.manager.Connect()
	return nil
}

// Disconnect 手动断开
func (s *sessionService) Disconnect(_ context.Context) {
	s.manager.Disconnect()
}

// Login 保存 token 与资料后立即建连
func (s *sessionService) Login(ctx context.Context, req request.LoginRequest) (*model.UserProfile, error) {
	user, err := s.accounts.Login(ctx, req.Token, model.UserProfile{Email: req.Email, Name: req.Name})
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		// token 已保存但不可用（如已过期），登录本身仍算成功
		zap.L().Warn("connect after login failed", zap.Error(err))
	}
	return user, nil
}

// Logout 断开连接，清除 token、资料与缓存的会话
func (s *sessionService) Logout(ctx context.Context) error {
	s.manager.Disconnect()
	if err := s.accounts.Logout(ctx); err != nil {
		return err
	}
	if err := s.cache.Clear(ctx); err != nil {
		zap.L().Error("clear chat cache failed", zap.Error(err))
		return err
	}
	zap.L().Info("logged out")
	return nil
}
