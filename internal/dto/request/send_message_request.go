package request

// SendMessageRequest 控制 API 发送消息请求
// ChatID 为空表示新建会话；路由带 :chat_id 时以路径为准
type SendMessageRequest struct {
	ChatID  string `json:"chat_id" binding:"omitempty,chatid"`
	Content string `json:"content" binding:"required,max=8000"`
}
