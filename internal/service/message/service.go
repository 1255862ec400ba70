// Package message 实现界面侧的消息变更：乐观写入缓存，再交给会话管理器发送
package message

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mail_assistant_client/internal/model"
	"mail_assistant_client/internal/service/chat"
	"mail_assistant_client/pkg/constants"
	"mail_assistant_client/pkg/enum/message/message_status_enum"
	"mail_assistant_client/pkg/errorx"
)

// Session 消息服务依赖的会话管理器能力
type Session interface {
	CurrentChatID() string
	JoinChat(chatID string)
	Send(msg chat.OutboundMessage)
}

// Store 消息服务依赖的查询缓存能力
type Store interface {
	AppendOptimisticMessage(chatID string, partial model.Message) model.Message
	UpdateMessageStatus(chatID, id string, status message_status_enum.Status) error
	RemoveChat(chatID string) bool
	Chats() []model.Chat
	Chat(chatID string) (model.Chat, bool)
	Messages(chatID string) []model.Message
	Message(chatID, id string) (model.Message, bool)
}

// messageService 消息业务逻辑实现
type messageService struct {
	session Session
	store   Store
}

// NewMessageService 构造函数
func NewMessageService(session Session, store Store) *messageService {
	return &messageService{session: session, store: store}
}

// SendMessage 发送一条用户消息
// chatID 为空时以 local-<uuid> 开启新会话，服务端确认后改名
// 消息立即以 sending 状态出现在缓存中
func (s *messageService) SendMessage(_ context.Context, chatID, text string) (*model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "message content is empty")
	}
	if chatID == "" {
		chatID = constants.LOCAL_ID_PREFIX + uuid.NewString()
	}

	msg := s.store.AppendOptimisticMessage(chatID, model.Message{Content: text})
	s.dispatch(chatID, msg)
	return &msg, nil
}

// RetryMessage 重新发送一条失败的消息
func (s *messageService) RetryMessage(_ context.Context, chatID, messageID string) (*model.Message, error) {
	msg, ok := s.store.Message(chatID, messageID)
	if !ok {
		return nil, errorx.Newf(errorx.CodeNotFound, "message %s not found in chat %s", messageID, chatID)
	}
	if msg.Status != message_status_enum.Failed {
		return nil, errorx.Newf(errorx.CodeInvalidParam, "message is %s, only failed messages can be retried", msg.Status)
	}
	if err := s.store.UpdateMessageStatus(chatID, msg.ID, message_status_enum.Sending); err != nil {
		return nil, err
	}
	msg.Status = message_status_enum.Sending
	s.dispatch(chatID, msg)
	return &msg, nil
}

// dispatch 必要时先切换会话，再交给管理器
// 两个操作按提交顺序执行，消息总是发往 chatID
func (s *messageService) dispatch(chatID string, msg model.Message) {
	if s.session.CurrentChatID() != chatID {
		s.session.JoinChat(chatID)
	}
	s.session.Send(chat.OutboundMessage{ChatID: chatID, LocalID: msg.ID, Text: msg.Content})
	zap.L().Debug("message dispatched", zap.String("chat_id", chatID), zap.String("local_id", msg.ID))
}

// JoinChat 切换当前会话
func (s *messageService) JoinChat(_ context.Context, chatID string) error {
	if strings.TrimSpace(chatID) == "" {
		return errorx.New(errorx.CodeInvalidParam, "chat id is empty")
	}
	s.session.JoinChat(chatID)
	return nil
}

// DeleteChat 删除会话及其全部消息
func (s *messageService) DeleteChat(_ context.Context, chatID string) error {
	if !s.store.RemoveChat(chatID) {
		return errorx.Newf(errorx.CodeNotFound, "chat %s not found", chatID)
	}
	return nil
}

// ListChats 会话列表，最近活跃的在前
func (s *messageService) ListChats(_ context.Context) []model.Chat {
	return s.store.Chats()
}

// GetMessages 会话中的全部消息，按插入顺序
func (s *messageService) GetMessages(_ context.Context, chatID string) ([]model.Message, error) {
	if _, ok := s.store.Chat(chatID); !ok {
		return nil, errorx.Newf(errorx.CodeNotFound, "chat %s not found", chatID)
	}
	return s.store.Messages(chatID), nil
}
