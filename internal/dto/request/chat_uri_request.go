package request

// ChatURIRequest 路径参数 /chats/:chat_id
type ChatURIRequest struct {
	ChatID string `uri:"chat_id" binding:"required,chatid"`
}

// MessageURIRequest 路径参数 /chats/:chat_id/messages/:message_id
type MessageURIRequest struct {
	ChatID    string `uri:"chat_id" binding:"required,chatid"`
	MessageID string `uri:"message_id" binding:"required"`
}
