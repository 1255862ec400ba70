package request

// AuthRequest 建连后发送的认证帧
// 使用位置:
//   - internal/service/chat/manager.go: handleDial, JoinChat
type AuthRequest struct {
	JwtToken string `json:"jwt_token"`
	ChatID   string `json:"chatId"`
}
