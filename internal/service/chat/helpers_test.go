package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"mail_assistant_client/internal/service/cache"
)

const waitFor = 3 * time.Second

// fakeServer 模拟聊天后端
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	accepted chan *serverConn
	dials    atomic.Int32
	reject   atomic.Bool
}

type serverConn struct {
	t      *testing.T
	conn   *websocket.Conn
	frames chan []byte
	at     time.Time
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{t: t, accepted: make(chan *serverConn, 32)}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.dials.Add(1)
		if fs.reject.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := &serverConn{t: t, conn: conn, frames: make(chan []byte, 64), at: time.Now()}
		go func() {
			defer close(sc.frames)
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				sc.frames <- data
			}
		}()
		fs.accepted <- sc
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/ws/chat"
}

// next 等待下一个连接
func (fs *fakeServer) next() *serverConn {
	fs.t.Helper()
	select {
	case sc := <-fs.accepted:
		fs.t.Cleanup(func() { _ = sc.conn.Close() })
		return sc
	case <-time.After(waitFor):
		fs.t.Fatal("no connection accepted")
		return nil
	}
}

// expectNoConn 在 d 内没有新连接
func (fs *fakeServer) expectNoConn(d time.Duration) {
	fs.t.Helper()
	select {
	case <-fs.accepted:
		fs.t.Fatal("unexpected new connection")
	case <-time.After(d):
	}
}

// read 读取下一帧并解码到 map
func (sc *serverConn) read() map[string]any {
	sc.t.Helper()
	select {
	case data, ok := <-sc.frames:
		require.True(sc.t, ok, "connection closed")
		var v map[string]any
		require.NoError(sc.t, json.Unmarshal(data, &v))
		return v
	case <-time.After(waitFor):
		sc.t.Fatal("no frame received")
		return nil
	}
}

func (sc *serverConn) expectNoFrame(d time.Duration) {
	sc.t.Helper()
	select {
	case data, ok := <-sc.frames:
		if ok {
			sc.t.Fatalf("unexpected frame %s", data)
		}
	case <-time.After(d):
	}
}

// expectClosed 等待客户端关闭连接
func (sc *serverConn) expectClosed() {
	sc.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case _, ok := <-sc.frames:
			if !ok {
				return
			}
		case <-deadline:
			sc.t.Fatal("connection not closed")
		}
	}
}

func (sc *serverConn) send(v any) {
	sc.t.Helper()
	require.NoError(sc.t, sc.conn.WriteJSON(v))
}

func (sc *serverConn) sendRaw(s string) {
	sc.t.Helper()
	require.NoError(sc.t, sc.conn.WriteMessage(websocket.TextMessage, []byte(s)))
}

// drop 不发 close 帧直接断开，客户端看到 1006
func (sc *serverConn) drop() {
	_ = sc.conn.UnderlyingConn().Close()
}

func (sc *serverConn) closeWith(code int, text string) {
	_ = sc.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	_ = sc.conn.Close()
}

type staticToken struct {
	token string
	err   error
}

func (s staticToken) Token(context.Context) (string, error) {
	return s.token, s.err
}

// recorder 记录全部事件
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(m *Manager) *recorder {
	r := &recorder{}
	for _, kind := range AllEventKinds {
		m.On(kind, func(ev Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) all(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) count(kind EventKind) int {
	return len(r.all(kind))
}

func (r *recorder) waitCount(t *testing.T, kind EventKind, n int) []Event {
	t.Helper()
	require.Eventually(t, func() bool { return r.count(kind) >= n }, waitFor, 5*time.Millisecond, "waiting for %d %s events", n, kind)
	return r.all(kind)
}

// countingDialer 统计同时打开的 socket 数
type countingDialer struct {
	inner   Dialer
	open    atomic.Int32
	maxOpen atomic.Int32
}

func (d *countingDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, err := d.inner.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	n := d.open.Add(1)
	for {
		cur := d.maxOpen.Load()
		if n <= cur || d.maxOpen.CompareAndSwap(cur, n) {
			break
		}
	}
	return &countedConn{Conn: conn, d: d}, nil
}

type countedConn struct {
	Conn
	d    *countingDialer
	once sync.Once
}

func (c *countedConn) Close() error {
	c.once.Do(func() { c.d.open.Add(-1) })
	return c.Conn.Close()
}

func testConfig(url string) Config {
	return Config{
		URL:            url,
		BaseDelay:      20 * time.Millisecond,
		MaxDelay:       200 * time.Millisecond,
		MaxAttempts:    5,
		ConnectTimeout: 2 * time.Second,
		WriteTimeout:   time.Second,
		LegacyWelcome:  true,
	}
}

func newTestManager(t *testing.T, cfg Config, opts ...Option) (*Manager, *cache.QueryCache, *recorder) {
	t.Helper()
	qc := cache.NewQueryCache(nil)
	m := NewManager(cfg, staticToken{token: "tok"}, qc, opts...)
	rec := record(m)
	m.Start()
	t.Cleanup(m.Dispose)
	return m, qc, rec
}

func waitState(t *testing.T, m *Manager, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == s }, waitFor, 5*time.Millisecond, "waiting for state %s, have %s", s, m.State())
}

// handshake 接受连接、校验认证帧并发送 ready
func handshake(t *testing.T, fs *fakeServer, chatID string) *serverConn {
	t.Helper()
	sc := fs.next()
	auth := sc.read()
	require.Equal(t, "tok", auth["jwt_token"])
	sc.send(map[string]any{"type": "ready", "chatId": chatID})
	return sc
}
