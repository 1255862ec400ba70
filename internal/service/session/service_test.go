package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	myredis "mail_assistant_client/internal/dao/redis"
	"mail_assistant_client/internal/dto/request"
	"mail_assistant_client/internal/model"
	"mail_assistant_client/internal/service/account"
	"mail_assistant_client/internal/service/cache"
	"mail_assistant_client/internal/service/chat"
	"mail_assistant_client/pkg/errorx"
	"mail_assistant_client/pkg/util/jwt"
)

type fakeManager struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	snap        chat.Snapshot
}

func (f *fakeManager) Connect() {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
}

func (f *fakeManager) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakeManager) Status() chat.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.Claims{
		UserID:           "U1",
		Email:            "me@example.com",
		RegisteredClaims: gojwt.RegisteredClaims{ExpiresAt: gojwt.NewNumericDate(exp)},
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return token
}

func newService(t *testing.T) (*sessionService, *fakeManager, *cache.QueryCache) {
	t.Helper()
	acc, err := account.NewAccountService(myredis.NewMemoryCache(), "", 0)
	require.NoError(t, err)
	mgr := &fakeManager{snap: chat.Snapshot{State: chat.StateDisconnected}}
	qc := cache.NewQueryCache(nil)
	return NewSessionService(mgr, acc, qc), mgr, qc
}

func TestConnectRequiresToken(t *testing.T) {
	s, mgr, _ := newService(t)

	err := s.Connect(context.Background())
	assert.Equal(t, errorx.CodeUnauthorized, errorx.GetCode(err))
	assert.Zero(t, mgr.connects)
}

func TestLoginConnectsAndReportsUser(t *testing.T) {
	ctx := context.Background()
	s, mgr, _ := newService(t)

	user, err := s.Login(ctx, request.LoginRequest{Token: signToken(t, time.Now().Add(time.Hour)), Name: "Me"})
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", user.Email)
	assert.Equal(t, 1, mgr.connects)

	mgr.snap = chat.Snapshot{State: chat.StateReady, Attempts: 0, CurrentChatID: "c1", LastError: errors.New("boom"), QueueLen: 2}
	st := s.Status(ctx)
	assert.Equal(t, "ready", st.State)
	assert.Equal(t, "c1", st.CurrentChatID)
	assert.Equal(t, "boom", st.LastError)
	assert.Equal(t, 2, st.QueueLen)
	assert.Equal(t, "me@example.com", st.UserEmail)
}

func TestLoginWithExpiredTokenDoesNotConnect(t *testing.T) {
	s, mgr, _ := newService(t)

	_, err := s.Login(context.Background(), request.LoginRequest{Token: signToken(t, time.Now().Add(-time.Hour))})
	require.NoError(t, err)
	assert.Zero(t, mgr.connects)
}

func TestLogoutClearsEverything(t *testing.T) {
	ctx := context.Background()
	s, mgr, qc := newService(t)
	_, err := s.Login(ctx, request.LoginRequest{Token: signToken(t, time.Now().Add(time.Hour))})
	require.NoError(t, err)
	qc.AppendOptimisticMessage("c1", model.Message{Content: "hi"})

	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, 1, mgr.disconnects)
	assert.Empty(t, qc.Chats())
	assert.Empty(t, s.Status(ctx).UserEmail)
	assert.Equal(t, errorx.CodeUnauthorized, errorx.GetCode(s.Connect(ctx)))
}
