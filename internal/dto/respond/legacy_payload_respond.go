package respond

// MessagePayload 旧协议 type=message 的 payload
// 带 localId 时表示服务端对乐观消息的确认
type MessagePayload struct {
	ID        string `json:"id"`
	LocalID   string `json:"localId,omitempty"`
	Content   string `json:"content"`
	Role      string `json:"role,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// TypingPayload 旧协议 type=typing 的 payload
type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

// PresencePayload 旧协议 user_joined / user_left 的 payload
type PresencePayload struct {
	Name string `json:"name,omitempty"`
}

// ErrorPayload 旧协议 type=error 的 payload
type ErrorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}
