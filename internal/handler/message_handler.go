package handler

import (
	"github.com/gin-gonic/gin"

	"mail_assistant_client/internal/dto/request"
	"mail_assistant_client/internal/service"
)

// MessageHandler 会话与消息请求处理器
type MessageHandler struct {
	messageSvc service.MessageService
}

// NewMessageHandler 创建处理器实例
func NewMessageHandler(messageSvc service.MessageService) *MessageHandler {
	return &MessageHandler{messageSvc: messageSvc}
}

// ListChats 会话列表
// GET /chats
func (h *MessageHandler) ListChats(c *gin.Context) {
	HandleSuccess(c, h.messageSvc.ListChats(c.Request.Context()))
}

// GetMessages 会话消息
// GET /chats/:chat_id/messages
func (h *MessageHandler) GetMessages(c *gin.Context) {
	var uri request.ChatURIRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		HandleParamError(c, err)
		return
	}
	data, err := h.messageSvc.GetMessages(c.Request.Context(), uri.ChatID)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// SendMessage 向指定会话发送消息
// POST /chats/:chat_id/messages
// 请求体: request.SendMessageRequest（chat_id 以路径为准）
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var uri request.ChatURIRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		HandleParamError(c, err)
		return
	}
	h.send(c, uri.ChatID)
}

// NewConversation 发送消息；chat_id 为空时新建会话
// POST /chats/messages
func (h *MessageHandler) NewConversation(c *gin.Context) {
	h.send(c, "")
}

func (h *MessageHandler) send(c *gin.Context, chatID string) {
	var req request.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if chatID == "" {
		chatID = req.ChatID
	}
	msg, err := h.messageSvc.SendMessage(c.Request.Context(), chatID, req.Content)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, msg)
}

// JoinChat 切换当前会话
// POST /chats/:chat_id/join
func (h *MessageHandler) JoinChat(c *gin.Context) {
	var uri request.ChatURIRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.messageSvc.JoinChat(c.Request.Context(), uri.ChatID); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// RetryMessage 重发失败的消息
// POST /chats/:chat_id/messages/:message_id/retry
func (h *MessageHandler) RetryMessage(c *gin.Context) {
	var uri request.MessageURIRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		HandleParamError(c, err)
		return
	}
	msg, err := h.messageSvc.RetryMessage(c.Request.Context(), uri.ChatID, uri.MessageID)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, msg)
}

// DeleteChat 删除会话
// DELETE /chats/:chat_id
func (h *MessageHandler) DeleteChat(c *gin.Context) {
	var uri request.ChatURIRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.messageSvc.DeleteChat(c.Request.Context(), uri.ChatID); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
