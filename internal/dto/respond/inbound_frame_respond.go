package respond

import "encoding/json"

// InboundFrame 服务端下发帧的统一解码结构
// 三类帧共用：reply 帧看 Reply 字段，其余按 Type 区分
type InboundFrame struct {
	Type    string          `json:"type,omitempty"`
	ChatID  string          `json:"chatId,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Reply   []string        `json:"reply,omitempty"`
	Error   bool            `json:"error,omitempty"`
	ID      string          `json:"id,omitempty"`
}

// IsReply 是否为 reply 帧
func (f *InboundFrame) IsReply() bool {
	return f.Reply != nil
}

// FirstReply 取 reply 的第一个元素
func (f *InboundFrame) FirstReply() string {
	if len(f.Reply) == 0 {
		return ""
	}
	return f.Reply[0]
}
