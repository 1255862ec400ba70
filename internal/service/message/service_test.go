package message

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail_assistant_client/internal/service/cache"
	"mail_assistant_client/internal/service/chat"
	"mail_assistant_client/pkg/constants"
	"mail_assistant_client/pkg/enum/message/message_status_enum"
	"mail_assistant_client/pkg/errorx"
)

// fakeSession 记录调用顺序的会话管理器
type fakeSession struct {
	mu      sync.Mutex
	current string
	calls   []string
	sent    []chat.OutboundMessage
}

func (f *fakeSession) CurrentChatID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeSession) JoinChat(chatID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = chatID
	f.calls = append(f.calls, "join:"+chatID)
}

func (f *fakeSession) Send(msg chat.OutboundMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	f.calls = append(f.calls, "send:"+msg.ChatID)
}

func newService() (*messageService, *fakeSession, *cache.QueryCache) {
	sess := &fakeSession{current: "c1"}
	qc := cache.NewQueryCache(nil)
	return NewMessageService(sess, qc), sess, qc
}

func TestSendMessageToCurrentChat(t *testing.T) {
	s, sess, qc := newService()

	msg, err := s.SendMessage(context.Background(), "c1", "hello")
	require.NoError(t, err)

	// 乐观消息同步可见
	got, ok := qc.Message("c1", msg.ID)
	require.True(t, ok)
	assert.Equal(t, message_status_enum.Sending, got.Status)
	assert.True(t, strings.HasPrefix(msg.ID, constants.LOCAL_ID_PREFIX))

	assert.Equal(t, []string{"send:c1"}, sess.calls)
	require.Len(t, sess.sent, 1)
	assert.Equal(t, chat.OutboundMessage{ChatID: "c1", LocalID: msg.ID, Text: "hello"}, sess.sent[0])
}

func TestSendMessageJoinsOtherChatFirst(t *testing.T) {
	s, sess, _ := newService()

	_, err := s.SendMessage(context.Background(), "c2", "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"join:c2", "send:c2"}, sess.calls)
}

func TestSendMessageStartsProvisionalChat(t *testing.T) {
	s, sess, qc := newService()

	msg, err := s.SendMessage(context.Background(), "", "Summarize my inbox\nplease")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg.ChatID, constants.LOCAL_ID_PREFIX))

	c, ok := qc.Chat(msg.ChatID)
	require.True(t, ok)
	assert.True(t, c.Provisional)
	assert.Equal(t, "Summarize my inbox", c.Title)
	assert.Equal(t, []string{"join:" + msg.ChatID, "send:" + msg.ChatID}, sess.calls)
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	s, sess, qc := newService()

	_, err := s.SendMessage(context.Background(), "c1", "   ")
	assert.Equal(t, errorx.CodeInvalidParam, errorx.GetCode(err))
	assert.Empty(t, sess.calls)
	assert.Empty(t, qc.Chats())
}

func TestRetryMessage(t *testing.T) {
	ctx := context.Background()
	s, sess, qc := newService()
	msg, err := s.SendMessage(ctx, "c1", "hello")
	require.NoError(t, err)

	// 还在 sending 的消息不能重试
	_, err = s.RetryMessage(ctx, "c1", msg.ID)
	assert.Equal(t, errorx.CodeInvalidParam, errorx.GetCode(err))

	require.NoError(t, qc.UpdateMessageStatus("c1", msg.ID, message_status_enum.Failed))
	retried, err := s.RetryMessage(ctx, "c1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, message_status_enum.Sending, retried.Status)

	got, _ := qc.Message("c1", msg.ID)
	assert.Equal(t, message_status_enum.Sending, got.Status)
	require.Len(t, sess.sent, 2)
	assert.Equal(t, msg.ID, sess.sent[1].LocalID)

	_, err = s.RetryMessage(ctx, "c1", "missing")
	assert.True(t, errorx.IsNotFound(err))
}

func TestChatQueries(t *testing.T) {
	ctx := context.Background()
	s, sess, _ := newService()
	_, err := s.SendMessage(ctx, "c1", "first")
	require.NoError(t, err)
	_, err = s.SendMessage(ctx, "c2", "second")
	require.NoError(t, err)

	chats := s.ListChats(ctx)
	require.Len(t, chats, 2)
	assert.Equal(t, "c2", chats[0].ID)

	msgs, err := s.GetMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "first", msgs[0].Content)

	_, err = s.GetMessages(ctx, "nope")
	assert.True(t, errorx.IsNotFound(err))

	require.NoError(t, s.DeleteChat(ctx, "c1"))
	assert.True(t, errorx.IsNotFound(s.DeleteChat(ctx, "c1")))
	assert.Len(t, s.ListChats(ctx), 1)

	require.NoError(t, s.JoinChat(ctx, "c9"))
	assert.Equal(t, "c9", sess.CurrentChatID())
	assert.Error(t, s.JoinChat(ctx, ""))
}
