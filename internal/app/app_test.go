package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail_assistant_client/internal/config"
	"mail_assistant_client/internal/model"
	"mail_assistant_client/internal/service/chat"
)

func signToken(t *testing.T) string {
	t.Helper()
	claims := gojwt.RegisteredClaims{ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return token
}

// chatBackend 回复 ready 的最小聊天服务端
func chatBackend(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "ready", "chatId": "c1"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func testConfig(t *testing.T, apiBaseURL string) *config.Config {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.APIBaseURL = apiBaseURL
	cfg.ControlConfig.Port = 0
	cfg.LogConfig.LogPath = t.TempDir()
	cfg.StoreConfig.Path = filepath.Join(t.TempDir(), "store.db")
	return cfg
}

func TestRunConnectsWithConfiguredToken(t *testing.T) {
	cfg := testConfig(t, chatBackend(t))
	cfg.AuthConfig.Token = signToken(t)

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, a.Run(context.Background()))
	defer func() { assert.NoError(t, a.Close()) }()

	require.Eventually(t, func() bool { return a.Manager.State() == chat.StateReady }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "c1", a.Manager.CurrentChatID())

	resp, err := http.Get("http://" + a.ControlAddr() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunWithoutTokenStaysDisconnected(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.ControlConfig.Enabled = false

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, a.Run(context.Background()))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, chat.StateDisconnected, a.Manager.State())
	assert.Empty(t, a.ControlAddr())
	assert.NoError(t, a.Close())
}

func TestChatsSurviveRestartWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.ControlConfig.Enabled = false
	cfg.EnableWebSocket = false
	cfg.RedisConfig.Enabled = true
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	cfg.RedisConfig.Host = host
	cfg.RedisConfig.Port, err = strconv.Atoi(port)
	require.NoError(t, err)

	first, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))
	first.Cache.MergeInboundMessage("c1", model.Message{ID: "m1", Content: "hello from before"})
	require.NoError(t, first.Close())

	second, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, second.Close()) }()

	msgs := second.Cache.Messages("c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello from before", msgs[0].Content)
}

func TestLoginAndChatsSurviveRestartWithoutRedis(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.ControlConfig.Enabled = false
	cfg.EnableWebSocket = false
	require.False(t, cfg.RedisConfig.Enabled)

	ctx := context.Background()
	first, err := New(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, first.Run(ctx))
	_, err = first.Account.Login(ctx, signToken(t), model.UserProfile{Email: "owner@example.com"})
	require.NoError(t, err)
	first.Cache.MergeInboundMessage("c1", model.Message{ID: "m1", Content: "hello from before"})
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, second.Close()) }()

	assert.True(t, second.Account.HasToken(ctx))
	user, err := second.Account.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "owner@example.com", user.Email)

	msgs := second.Cache.Messages("c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello from before", msgs[0].Content)
}

func TestNewFailsWhenRedisUnreachable(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.RedisConfig.Enabled = true
	cfg.RedisConfig.Host = "127.0.0.1"
	cfg.RedisConfig.Port = 1

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
