package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mail_assistant_client/pkg/enum/message/message_status_enum"
)

func TestMessageMatches(t *testing.T) {
	m := Message{ID: "local-1", ServerID: "srv-9"}

	assert.True(t, m.Matches("local-1"))
	assert.True(t, m.Matches("srv-9"))
	assert.False(t, m.Matches(""))
	assert.False(t, (&Message{ID: "a"}).Matches("b"))
}

func TestMessageImmutable(t *testing.T) {
	m := Message{Status: message_status_enum.Sent}
	assert.False(t, m.Immutable())
	m.Status = message_status_enum.Delivered
	assert.True(t, m.Immutable())
}

func TestChatTouchTruncatesPreview(t *testing.T) {
	now := time.Now()
	c := Chat{ID: "c1"}
	c.Touch(Message{Content: strings.Repeat("邮", 100), Timestamp: now})

	assert.Equal(t, now, c.LastMessageTime)
	assert.Equal(t, previewLen+1, len([]rune(c.LastMessage)))
	assert.True(t, strings.HasSuffix(c.LastMessage, "…"))
}
