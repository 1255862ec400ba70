// Package jwt 客户端侧的 token 检查
// 客户端没有签名密钥，只能解析 claims 判断是否过期，真正的校验由服务端完成
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired token 已过期
var ErrTokenExpired = errors.New("jwt: token expired")

// Claims 服务端签发的 JWT 声明
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Inspect 不校验签名地解析 token
func Inspect(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Expired 判断 token 在 now 时刻是否已经过期，leeway 为允许的时钟偏差
// 没有 exp 字段的 token 视为永不过期
func (c *Claims) Expired(now time.Time, leeway time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.After(c.ExpiresAt.Time.Add(leeway))
}

// CheckUsable 检查 token 是否仍可用于握手
// 无法解析为 JWT 的 token 视为不透明字符串，返回 nil claims，由服务端校验
func CheckUsable(tokenString string, leeway time.Duration) (*Claims, error) {
	claims, err := Inspect(tokenString)
	if err != nil {
		return nil, nil
	}
	if claims.Expired(time.Now(), leeway) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}
