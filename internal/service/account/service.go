// Package account 管理本地登录态
// 包括 jwtToken 与 currentUser 两个持久化键
package account

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	myredis "mail_assistant_client/internal/dao/redis"
	"mail_assistant_client/internal/model"
	"mail_assistant_client/pkg/aes"
	"mail_assistant_client/pkg/constants"
	"mail_assistant_client/pkg/errorx"
	"mail_assistant_client/pkg/util/jwt"
)

// encryptedPrefix 加密后的 token 以此为前缀，便于区分旧版明文
const encryptedPrefix = "enc:"

// Service 账号服务实现
type Service struct {
	store  myredis.CacheService // 本地存储（依赖倒置）
	key    []byte               // 为空表示明文保存
	leeway time.Duration
	logger *zap.Logger

	mu       sync.RWMutex
	fallback string // 配置注入的 token，本地没有保存时使用
}

// NewAccountService 创建账号服务实例
// storageKey 非空时 token 加密保存
func NewAccountService(store myredis.CacheService, storageKey string, leeway time.Duration) (*Service, error) {
	s := &Service{
		store:  store,
		leeway: leeway,
		logger: zap.L().Named("account"),
	}
	if storageKey != "" {
		key, err := aes.DeriveKey(storageKey)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.CodeServerBusy, "derive storage key")
		}
		s.key = key
	}
	return s, nil
}

// WithFallbackToken 设置启动时注入的 token
func (s *Service) WithFallbackToken(token string) *Service {
	s.mu.Lock()
	s.fallback = strings.TrimSpace(token)
	s.mu.Unlock()
	return s
}

// SaveToken 原样保存服务端签发的 token
// 不要求是 JWT，只有能解析的 token 才在本地检查有效期
func (s *Service) SaveToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errorx.New(errorx.CodeInvalidParam, "token is empty")
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return errorx.New(errorx.CodeInvalidParam, "token contains whitespace")
	}
	value := token
	if s.key != nil {
		enc, err := aes.Encrypt([]byte(token), s.key)
		if err != nil {
			return errorx.Wrap(err, errorx.CodeCacheError, "encrypt token")
		}
		value = encryptedPrefix + enc
	}
	return s.store.Set(ctx, constants.KEY_JWT_TOKEN, value, 0)
}

// Token 返回可用于握手的 token，实现 chat.TokenSource
// 没有 token 或 token 已过期时返回 CodeUnauthorized
func (s *Service) Token(ctx context.Context) (string, error) {
	token, err := s.storedToken(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		token = s.fallbackToken()
	}
	if token == "" {
		return "", errorx.ErrUnauthorized
	}
	if _, err := jwt.CheckUsable(token, s.leeway); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errorx.Wrap(err, errorx.CodeUnauthorized, "token expired")
		}
		return "", errorx.Wrap(err, errorx.CodeUnauthorized, "malformed token")
	}
	return token, nil
}

// HasToken 本地或配置中是否存在 token（不检查有效期）
func (s *Service) HasToken(ctx context.Context) bool {
	token, err := s.storedToken(ctx)
	return err == nil && (token != "" || s.fallbackToken() != "")
}

func (s *Service) fallbackToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallback
}

func (s *Service) storedToken(ctx context.Context) (string, error) {
	raw, err := s.store.Get(ctx, constants.KEY_JWT_TOKEN)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(raw, encryptedPrefix) {
		// 旧版明文 token 原样使用，下次保存时再加密
		return raw, nil
	}
	if s.key == nil {
		return "", errorx.New(errorx.CodeUnauthorized, "token is encrypted but storageKey is not configured")
	}
	plain, err := aes.Decrypt(strings.TrimPrefix(raw, encryptedPrefix), s.key)
	if err != nil {
		return "", errorx.Wrap(err, errorx.CodeUnauthorized, "decrypt token")
	}
	return string(plain), nil
}

// SaveUser 保存当前用户资料
func (s *Service) SaveUser(ctx context.Context, profile model.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeServerBusy, "encode profile")
	}
	return s.store.Set(ctx, constants.KEY_CURRENT_USER, string(data), 0)
}

// CurrentUser 读取当前用户资料，未登录返回 nil
// 兼容旧版只保存了邮箱字符串的数据，读取后升级为 JSON
func (s *Service) CurrentUser(ctx context.Context) (*model.UserProfile, error) {
	raw, err := s.store.Get(ctx, constants.KEY_CURRENT_USER)
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var profile model.UserProfile
	if err := json.Unmarshal([]byte(raw), &profile); err == nil {
		return &profile, nil
	}

	email := strings.Trim(raw, `"`)
	if !strings.Contains(email, "@") {
		return nil, errorx.Newf(errorx.CodeCacheError, "unrecognized currentUser value")
	}
	profile = model.UserProfile{Email: email}
	if err := s.SaveUser(ctx, profile); err != nil {
		s.logger.Warn("upgrade legacy profile failed", zap.Error(err))
	}
	return &profile, nil
}

// Login 保存 token 与用户资料
// 资料中缺少的邮箱 / ID 从 token 的 claims 中补齐
func (s *Service) Login(ctx context.Context, token string, profile model.UserProfile) (*model.UserProfile, error) {
	if err := s.SaveToken(ctx, token); err != nil {
		return nil, err
	}
	if claims, err := jwt.Inspect(strings.TrimSpace(token)); err == nil {
		if profile.Email == "" {
			profile.Email = claims.Email
		}
		if profile.ID == "" {
			profile.ID = claims.UserID
		}
	}
	if err := s.SaveUser(ctx, profile); err != nil {
		return nil, err
	}
	s.logger.Info("logged in", zap.String("email", profile.Email))
	return &profile, nil
}

// Logout 清除 token 与用户资料
// 配置注入的 token 同时失效
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.fallback = ""
	s.mu.Unlock()
	if err := s.store.Delete(ctx, constants.KEY_JWT_TOKEN); err != nil {
		return err
	}
	return s.store.Delete(ctx, constants.KEY_CURRENT_USER)
}
