package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail_assistant_client/internal/dto/request"
	"mail_assistant_client/internal/dto/respond"
	"mail_assistant_client/internal/model"
	"mail_assistant_client/internal/service"
	"mail_assistant_client/pkg/errorx"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := InitTrans("en"); err != nil {
		panic(err)
	}
	m.Run()
}

type fakeSessionSvc struct {
	connectErr error
	loginReq   request.LoginRequest
}

func (f *fakeSessionSvc) Status(context.Context) respond.StatusRespond {
	return respond.StatusRespond{State: "ready", CurrentChatID: "c1"}
}
func (f *fakeSessionSvc) Connect(context.Context) error { return f.connectErr }
func (f *fakeSessionSvc) Disconnect(context.Context) {}
func (f *fakeSessionSvc) Login(_ context.Context, req request.LoginRequest) (*model.UserProfile, error) {
	f.loginReq = req
	return &model.UserProfile{Email: req.Email}, nil
}
func (f *fakeSessionSvc) Logout(context.Context) error { return nil }

type fakeMessageSvc struct {
	sentChat string
	sentText string
}

func (f *fakeMessageSvc) SendMessage(_ context.Context, chatID, text string) (*model.Message, error) {
	f.sentChat, f.sentText = chatID, text
	if chatID == "" {
		chatID = "local-new"
	}
	return &model.Message{ID: "local-1", ChatID: chatID, Content: text}, nil
}
func (f *fakeMessageSvc) RetryMessage(_ context.Context, chatID, messageID string) (*model.Message, error) {
	return nil, errorx.Newf(errorx.CodeNotFound, "message %s not found", messageID)
}
func (f *fakeMessageSvc) JoinChat(context.Context, string) error { return nil }
func (f *fakeMessageSvc) DeleteChat(_ context.Context, chatID string) error {
	return nil
}
func (f *fakeMessageSvc) ListChats(context.Context) []model.Chat {
	return []model.Chat{{ID: "c1", Title: "Inbox"}}
}
func (f *fakeMessageSvc) GetMessages(_ context.Context, chatID string) ([]model.Message, error) {
	return []model.Message{{ID: "m1", ChatID: chatID}}, nil
}

func newEngine(sess *fakeSessionSvc, msgs *fakeMessageSvc) *gin.Engine {
	h := NewHandlers(&service.Services{Session: sess, Message: msgs})
	r := gin.New()
	r.GET("/status", h.Session.Status)
	r.POST("/session/connect", h.Session.Connect)
	r.POST("/session/login", h.Session.Login)
	r.POST("/chats/messages", h.Message.NewConversation)
	r.POST("/chats/:chat_id/messages", h.Message.SendMessage)
	r.GET("/chats/:chat_id/messages", h.Message.GetMessages)
	r.POST("/chats/:chat_id/messages/:message_id/retry", h.Message.RetryMessage)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out
}

func TestStatus(t *testing.T) {
	code, body := do(t, newEngine(&fakeSessionSvc{}, &fakeMessageSvc{}), http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, errorx.CodeSuccess, body["code"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "ready", data["state"])
	assert.Equal(t, "c1", data["current_chat_id"])
}

func TestConnectUnauthorized(t *testing.T) {
	sess := &fakeSessionSvc{connectErr: errorx.ErrUnauthorized}
	code, body := do(t, newEngine(sess, &fakeMessageSvc{}), http.MethodPost, "/session/connect", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.EqualValues(t, errorx.CodeUnauthorized, body["code"])
}

func TestLoginValidation(t *testing.T) {
	sess := &fakeSessionSvc{}
	r := newEngine(sess, &fakeMessageSvc{})

	code, body := do(t, r, http.MethodPost, "/session/login", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	msg := body["msg"].(map[string]any)
	assert.Contains(t, msg, "token")
	assert.Contains(t, msg, "email")

	code, _ = do(t, r, http.MethodPost, "/session/login", `{"token":"t","email":"a@example.com"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "t", sess.loginReq.Token)
}

func TestSendMessageRoutes(t *testing.T) {
	msgs := &fakeMessageSvc{}
	r := newEngine(&fakeSessionSvc{}, msgs)

	code, _ := do(t, r, http.MethodPost, "/chats/c7/messages", `{"content":"hi","chat_id":"ignored"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "c7", msgs.sentChat)
	assert.Equal(t, "hi", msgs.sentText)

	code, body := do(t, r, http.MethodPost, "/chats/messages", `{"content":"new topic"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, msgs.sentChat)
	assert.Equal(t, "local-new", body["data"].(map[string]any)["chatId"])

	code, body = do(t, r, http.MethodPost, "/chats/messages", `{"content":"x","chat_id":"has space"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["msg"].(map[string]any)["chat_id"], "chat id")

	code, _ = do(t, r, http.MethodPost, "/chats/messages", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRetryNotFound(t *testing.T) {
	code, body := do(t, newEngine(&fakeSessionSvc{}, &fakeMessageSvc{}), http.MethodPost, "/chats/c1/messages/m9/retry", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.EqualValues(t, errorx.CodeNotFound, body["code"])
}

func TestGetMessages(t *testing.T) {
	code, body := do(t, newEngine(&fakeSessionSvc{}, &fakeMessageSvc{}), http.MethodGet, "/chats/c3/messages", "")
	assert.Equal(t, http.StatusOK, code)
	list := body["data"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "c3", list[0].(map[string]any)["chatId"])
}

func TestValidateChatIDRule(t *testing.T) {
	cases := []struct {
		id string
		ok bool
	}{
		{"c1", true},
		{"local-3f1c", true},
		{"", false},
		{"a b", false},
		{strings.Repeat("x", 128), true},
		{strings.Repeat("x", 129), false},
	}
	for _, tc := range cases {
		err := binding.Validator.ValidateStruct(request.ChatURIRequest{ChatID: tc.id})
		assert.Equal(t, tc.ok, err == nil, "chat id %q", tc.id)
	}
}
