package request

// ChatMessageRequest 用户消息帧 (WebSocket)
// 使用位置:
//   - internal/service/chat/manager.go: transmit
type ChatMessageRequest struct {
	Message   string `json:"message"`
	ChatID    string `json:"chatId"`
	Timestamp string `json:"timestamp"` // RFC3339
}
