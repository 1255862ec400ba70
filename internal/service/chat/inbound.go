package chat

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"mail_assistant_client/internal/dto/respond"
	"mail_assistant_client/internal/infrastructure/metrics"
	"mail_assistant_client/internal/model"
	"mail_assistant_client/pkg/constants"
	"mail_assistant_client/pkg/enum/message/message_role_enum"
	"mail_assistant_client/pkg/enum/message/message_status_enum"
	"mail_assistant_client/pkg/errorx"
	"mail_assistant_client/pkg/util/snowflake"
)

// handleReply reply 帧：欢迎消息、错误或助手回复
func (m *Manager) handleReply(chatID, id, text string, isError bool) {
	if !isError && m.awaitingWelcome() {
		rejoin := m.rejoining
		m.rejoining = false
		if m.cfg.LegacyWelcome && isWelcome(text) {
			m.becomeReady(chatID)
			return
		}
		// 服务端跳过欢迎直接回复时，回复中的 chatId 即新会话的 id
		if rejoin && chatID != "" && chatID != m.chatID && strings.HasPrefix(m.chatID, constants.LOCAL_ID_PREFIX) {
			m.assignChat(chatID)
		}
	}

	chatID = m.resolveChat(chatID)
	if isError {
		err := errorx.New(errorx.CodeApplication, text)
		m.log.Warn("server returned error reply", zap.String("chat_id", chatID), zap.String("reply", text))
		m.bus.emit(ErrorEvent{Type: ErrorApplication, ChatID: chatID, Err: err})
		return
	}
	if text == "" || chatID == "" {
		m.log.Info("drop reply without content or chat", zap.String("chat_id", chatID))
		metrics.IncDroppedFrame("empty_reply")
		return
	}

	if id == "" {
		id = snowflake.GenerateIDString()
	}
	msg := model.Message{
		ID:        id,
		ChatID:    chatID,
		Content:   text,
		Role:      message_role_enum.Assistant,
		Timestamp: time.Now(),
		Status:    message_status_enum.Delivered,
	}
	if m.cache != nil {
		m.cache.MergeInboundMessage(chatID, msg)
		m.cache.MarkDelivered(chatID)
	}
	m.bus.emit(ReplyEvent{ChatID: chatID, Message: msg})
}

// awaitingWelcome 握手或重新认证后，第一条非错误回复可能是欢迎消息
func (m *Manager) awaitingWelcome() bool {
	return !m.serverReady || m.rejoining
}

// handleLegacy 兼容旧的 {type, payload, chatId, userId} 协议
func (m *Manager) handleLegacy(frameType, chatID, userID string, payload json.RawMessage) {
	chatID = m.resolveChat(chatID)

	switch frameType {
	case frameMessage:
		var p respond.MessagePayload
		if !m.decodePayload(frameType, payload, &p) {
			return
		}
		metrics.IncInboundFrame(frameType)
		m.handleLegacyMessage(chatID, userID, p)
	case frameTyping:
		var p respond.TypingPayload
		if !m.decodePayload(frameType, payload, &p) {
			return
		}
		metrics.IncInboundFrame(frameType)
		m.bus.emit(TypingEvent{ChatID: chatID, UserID: userID, IsTyping: p.IsTyping})
	case frameUserJoined, frameUserLeft:
		var p respond.PresencePayload
		if !m.decodePayload(frameType, payload, &p) {
			return
		}
		metrics.IncInboundFrame(frameType)
		if frameType == frameUserJoined {
			m.bus.emit(UserJoinedEvent{ChatID: chatID, UserID: userID, Name: p.Name})
		} else {
			m.bus.emit(UserLeftEvent{ChatID: chatID, UserID: userID, Name: p.Name})
		}
	case frameError:
		var p respond.ErrorPayload
		if !m.decodePayload(frameType, payload, &p) {
			return
		}
		metrics.IncInboundFrame(frameType)
		code := p.Code
		if code == 0 {
			code = errorx.CodeApplication
		}
		m.bus.emit(ErrorEvent{Type: ErrorApplication, ChatID: chatID, Err: errorx.New(code, p.Message)})
	default:
		m.log.Info("drop unrecognized frame type", zap.String("type", frameType))
		metrics.IncDroppedFrame("unrecognized")
	}
}

// decodePayload payload 缺失时按空对象处理
func (m *Manager) decodePayload(frameType string, payload json.RawMessage, v any) bool {
	if len(payload) == 0 || string(payload) == "null" {
		return true
	}
	if err := json.Unmarshal(payload, v); err != nil {
		m.log.Warn("drop malformed payload", zap.String("type", frameType), zap.Error(err))
		metrics.IncDroppedFrame("parse")
		return false
	}
	return true
}

func (m *Manager) handleLegacyMessage(chatID, userID string, p respond.MessagePayload) {
	// 带 localId 的是服务端对乐观消息的确认
	if p.LocalID != "" && p.ID != "" {
		if m.cache != nil {
			if err := m.cache.ConfirmMessage(chatID, p.LocalID, p.ID); err != nil {
				m.log.Warn("confirm optimistic message failed", zap.String("local_id", p.LocalID), zap.Error(err))
			}
		}
		m.bus.emit(MessageEvent{ChatID: chatID, UserID: userID, LocalID: p.LocalID, Message: model.Message{
			ID:       p.LocalID,
			ServerID: p.ID,
			ChatID:   chatID,
			Content:  p.Content,
			Role:     message_role_enum.User,
		}})
		return
	}
	if p.Content == "" || chatID == "" {
		m.log.Info("drop legacy message without content or chat", zap.String("chat_id", chatID))
		metrics.IncDroppedFrame("empty_message")
		return
	}

	role := message_role_enum.Role(p.Role)
	if role != message_role_enum.User {
		role = message_role_enum.Assistant
	}
	id := p.ID
	if id == "" {
		id = snowflake.GenerateIDString()
	}
	msg := model.Message{
		ID:        id,
		ChatID:    chatID,
		Content:   p.Content,
		Role:      role,
		Timestamp: parseTimestamp(p.Timestamp, time.Now()),
		Status:    message_status_enum.Delivered,
	}
	if m.cache != nil {
		m.cache.MergeInboundMessage(chatID, msg)
	}
	m.bus.emit(MessageEvent{ChatID: chatID, UserID: userID, Message: msg})
}
