// Package message_role_enum 消息发送方角色
package message_role_enum

// Role 发送方
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
)
