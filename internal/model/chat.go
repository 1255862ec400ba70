package model

import "time"

// Chat 会话元数据，消息列表单独存放
type Chat struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`

	// Provisional 本地乐观创建、尚未被服务端确认的会话
	Provisional bool `json:"provisional,omitempty"`
}

// Touch 用最新一条消息刷新预览
func (c *Chat) Touch(msg Message) {
	c.LastMessage = preview(msg.Content)
	c.LastMessageTime = msg.Timestamp
}

const previewLen = 80

func preview(content string) string {
	r := []rune(content)
	if len(r) <= previewLen {
		return content
	}
	return string(r[:previewLen]) + "…"
}
