// Package model 定义客户端侧的领域模型
// 本文件定义聊天消息
package model

import (
	"time"

	"mail_assistant_client/pkg/enum/message/message_role_enum"
	"mail_assistant_client/pkg/enum/message/message_status_enum"
)

// Message 一轮对话
// ID 是缓存中的主键：乐观消息使用本地生成的 local-xxx，收到的消息使用服务端 id
// ServerID 仅作为关联字段，乐观消息的 ID 永远不会被替换
type Message struct {
	ID        string                     `json:"id"`
	ServerID  string                     `json:"serverId,omitempty"`
	ChatID    string                     `json:"chatId"`
	Content   string                     `json:"content"`
	Role      message_role_enum.Role     `json:"role"`
	Timestamp time.Time                  `json:"timestamp"`
	Status    message_status_enum.Status `json:"status,omitempty"`
}

// Matches 按本地 id 或服务端 id 匹配
func (m *Message) Matches(id string) bool {
	if id == "" {
		return false
	}
	return m.ID == id || (m.ServerID != "" && m.ServerID == id)
}

// Immutable 到达 delivered 的消息不可再修改
func (m *Message) Immutable() bool {
	return m.Status.Final()
}
