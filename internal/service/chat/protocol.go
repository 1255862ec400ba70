package chat

import (
	"encoding/json"
	"strings"
	"time"

	"mail_assistant_client/internal/dto/request"
	"mail_assistant_client/internal/dto/respond"
	"mail_assistant_client/pkg/errorx"
)

// 旧协议中的帧类型
const (
	frameReady      = "ready"
	frameMessage    = "message"
	frameTyping     = "typing"
	frameUserJoined = "user_joined"
	frameUserLeft   = "user_left"
	frameError      = "error"
)

var welcomeMarkers = []string{"connected", "welcome", "ready"}

// isWelcome 旧服务端没有 ready 帧，用第一条回复的文本判断是否为欢迎消息
func isWelcome(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range welcomeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func encodeAuth(token, chatID string) ([]byte, error) {
	return json.Marshal(request.AuthRequest{JwtToken: token, ChatID: chatID})
}

func encodeChatMessage(text, chatID string, now time.Time) ([]byte, error) {
	return json.Marshal(request.ChatMessageRequest{
		Message:   text,
		ChatID:    chatID,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

func decodeFrame(data []byte) (*respond.InboundFrame, error) {
	var frame respond.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeProtocol, "decode inbound frame")
	}
	return &frame, nil
}

// parseTimestamp 解析失败时使用当前时间
func parseTimestamp(s string, now time.Time) time.Time {
	if s == "" {
		return now
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return now
}
