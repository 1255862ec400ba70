// Package chat 客户端会话管理
// manager.go
// 核心职责：维护到聊天端点的唯一 WebSocket 会话
// 1. 建连、认证握手、等待服务端 ready
// 2. 非正常断开后按指数退避重连，次数用尽进入 error
// 3. 未就绪时消息进入待发送队列，ready 后按 FIFO 发出
// 4. 解析服务端下发的帧，回写查询缓存并派发事件
//
// 所有状态变更都在一个事件循环协程上执行；公开方法只是把任务投递到 mailbox
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mail_assistant_client/internal/config"
	"mail_assistant_client/internal/infrastructure/metrics"
	"mail_assistant_client/internal/model"
	"mail_assistant_client/pkg/constants"
	"mail_assistant_client/pkg/enum/message/message_status_enum"
	"mail_assistant_client/pkg/errorx"
)

// Config 会话参数
type Config struct {
	URL            string
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxAttempts    int
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	LegacyWelcome  bool
}

// ConfigFrom 从全局配置构建会话参数
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		URL:            cfg.ChatURL(),
		BaseDelay:      cfg.BaseDelay.Duration,
		MaxDelay:       cfg.MaxDelay.Duration,
		MaxAttempts:    cfg.MaxAttempts,
		ConnectTimeout: cfg.ConnectTimeout.Duration,
		WriteTimeout:   cfg.WriteTimeout.Duration,
		LegacyWelcome:  cfg.LegacyWelcome,
	}
}

// TokenSource 提供握手用的 jwt
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CacheWriter 会话管理器对查询缓存的回写
type CacheWriter interface {
	MergeInboundMessage(chatID string, msg model.Message) bool
	MarkDelivered(chatID string) int
	UpdateMessageStatus(chatID, id string, status message_status_enum.Status) error
	ConfirmMessage(chatID, localID, serverID string) error
	RenameChat(oldID, newID string) error
}

// OutboundMessage 待发送的用户消息
// LocalID 为空表示没有对应的乐观消息，发送结果不回写缓存
type OutboundMessage struct {
	ChatID  string
	LocalID string
	Text    string
}

// Option 可选依赖
type Option func(*Manager)

// WithDialer 替换默认的 gorilla Dialer
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithLogger 指定日志实例，默认 zap.L()
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager 会话管理器
type Manager struct {
	cfg    Config
	dialer Dialer
	tokens TokenSource
	cache  CacheWriter
	log    *zap.Logger
	bus    *eventBus
	mb     *mailbox
	done   chan struct{}

	startOnce   sync.Once
	disposeOnce sync.Once

	// 以下字段只在事件循环协程上读写
	state       State
	attempts    int
	lastErr     error
	chatID      string
	token       string
	conn        Conn
	gen         uint64 // 每次打开/放弃 socket 递增，旧连接的回调据此丢弃
	serverReady bool
	rejoining   bool // ready 状态下重发了认证帧，等待服务端对该帧的答复
	manualStop  bool
	disposed    bool
	queue       []OutboundMessage
	backoff     *backoff.ExponentialBackOff

	connectTimer *time.Timer
	retryTimer   *time.Timer
	dialCancel   context.CancelFunc
	dialDone     chan struct{}

	snapMu sync.RWMutex
	snap   Snapshot
}

// NewManager 创建会话管理器，需调用 Start 后才开始处理任务
func NewManager(cfg Config, tokens TokenSource, cache CacheWriter, opts ...Option) *Manager {
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = constants.WRITE_WAIT
	}
	m := &Manager{
		cfg:    cfg,
		tokens: tokens,
		cache:  cache,
		mb:     newMailbox(),
		done:   make(chan struct{}),
		state:  StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = &GorillaDialer{}
	}
	if m.log == nil {
		m.log = zap.L()
	}
	m.log = m.log.With(zap.String("component", "session"))
	m.bus = newEventBus(m.log)
	m.backoff = newReconnectBackOff(cfg.BaseDelay, cfg.MaxDelay)
	m.snap = Snapshot{State: StateDisconnected}
	return m
}

// Start 启动事件循环
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		go m.run()
	})
}

// Dispose 断开连接并停止事件循环，未发出的乐观消息标记为 failed
// 会阻塞到事件循环退出，不能在事件处理函数中调用
func (m *Manager) Dispose() {
	m.disposeOnce.Do(func() {
		m.Start()
		m.mb.post(m.dispose)
		<-m.done
	})
}

// Connect 建立连接；正在连接或已连接时为空操作
func (m *Manager) Connect() {
	m.do(m.connect)
}

// Disconnect 主动断开，不再自动重连
func (m *Manager) Disconnect() {
	m.do(m.disconnect)
}

// JoinChat 切换到指定会话
func (m *Manager) JoinChat(chatID string) {
	m.do(func() { m.joinChat(chatID) })
}

// SendMessage 发送一条文本到当前会话
func (m *Manager) SendMessage(text string) {
	m.Send(OutboundMessage{Text: text})
}

// Send 发送一条消息；未就绪时进入队列并派发 queued 事件
func (m *Manager) Send(msg OutboundMessage) {
	m.do(func() { m.send(msg) })
}

// On 注册事件处理函数
func (m *Manager) On(kind EventKind, fn Handler) Subscription {
	return m.bus.on(kind, fn)
}

// Off 取消注册
func (m *Manager) Off(sub Subscription) bool {
	return m.bus.off(sub)
}

// Status 当前状态快照
func (m *Manager) Status() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap
}

func (m *Manager) State() State {
	return m.Status().State
}

func (m *Manager) Attempts() int {
	return m.Status().Attempts
}

func (m *Manager) CurrentChatID() string {
	return m.Status().CurrentChatID
}

// ==================== 事件循环 ====================

func (m *Manager) run() {
	defer close(m.done)
	for {
		tasks, closed := m.mb.take()
		for _, task := range tasks {
			m.exec(task)
		}
		if len(tasks) > 0 {
			continue
		}
		if closed {
			return
		}
		<-m.mb.signal
	}
}

func (m *Manager) exec(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			m.log.Error("session task panic", zap.Any("recover", rec))
		}
		m.syncSnapshot()
	}()
	task()
}

// do 投递公开方法对应的任务，Dispose 之后的调用被忽略
func (m *Manager) do(fn func()) {
	m.mb.post(func() {
		if m.disposed {
			return
		}
		fn()
	})
}

func (m *Manager) syncSnapshot() {
	m.snapMu.Lock()
	m.snap = Snapshot{
		State:         m.state,
		Attempts:      m.attempts,
		CurrentChatID: m.chatID,
		LastError:     m.lastErr,
		QueueLen:      len(m.queue),
	}
	m.snapMu.Unlock()
	metrics.SetQueueDepth(len(m.queue))
}

func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	prev := m.state
	m.state = s
	m.syncSnapshot()
	metrics.SetSessionState(string(s))
	m.log.Info("会话状态变化", zap.String("from", string(prev)), zap.String("to", string(s)))
	m.bus.emit(StateChangedEvent{From: prev, To: s})
}

// ==================== 连接生命周期 ====================

func (m *Manager) connect() {
	if m.state.Active() {
		m.log.Debug("connect ignored", zap.String("state", string(m.state)))
		return
	}
	m.manualStop = false
	m.stopRetryTimer()
	if m.state == StateError {
		// 重连次数用尽后由用户手动触发，重新计数
		m.attempts = 0
		m.backoff.Reset()
	}
	m.openSocket()
}

// openSocket 关闭旧 socket 后发起新的拨号
func (m *Manager) openSocket() {
	m.cancelDial()
	m.closeSocket(websocket.CloseNormalClosure, "reconnect")
	m.serverReady = false
	m.rejoining = false
	m.gen++
	g := m.gen

	m.setState(StateConnecting)
	m.startConnectTimer(g)

	ctx, cancel := context.WithCancel(context.Background())
	m.dialCancel = cancel
	prev := m.dialDone
	done := make(chan struct{})
	m.dialDone = done
	go m.dial(ctx, g, prev, done)
}

// dial 在独立协程中拨号，结果投递回事件循环
// 上一次拨号的结果处理完（接管或关闭）之后才开始，保证任一时刻最多一个 socket
func (m *Manager) dial(ctx context.Context, g uint64, prev <-chan struct{}, done chan struct{}) {
	if prev != nil {
		<-prev
	}

	var conn Conn
	token, err := m.tokens.Token(ctx)
	if err != nil {
		err = errorx.Wrap(err, errorx.CodeUnauthorized, "load token")
	} else {
		conn, err = m.dialer.Dial(ctx, m.cfg.URL)
	}

	posted := m.mb.post(func() { m.handleDial(g, done, conn, token, err) })
	if !posted {
		if conn != nil {
			_ = conn.Close()
		}
		close(done)
	}
}

func (m *Manager) handleDial(g uint64, done chan struct{}, conn Conn, token string, err error) {
	defer close(done)

	if g != m.gen || m.disposed {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}

	if err != nil {
		m.stopConnectTimer()
		m.lastErr = err
		if errorx.GetCode(err) == errorx.CodeUnauthorized {
			m.log.Warn("no usable token, giving up", zap.Error(err))
			m.setState(StateError)
			m.bus.emit(ErrorEvent{Type: ErrorAuth, Err: err})
			return
		}
		m.log.Warn("dial chat endpoint failed", zap.String("url", m.cfg.URL), zap.Error(err))
		m.bus.emit(ErrorEvent{Type: ErrorTransport, Err: err})
		m.scheduleReconnect()
		return
	}

	m.conn = conn
	m.token = token
	m.setState(StateConnected)
	m.bus.emit(ConnectedEvent{})
	go m.readLoop(g, conn)
	m.sendAuth()
}

// readLoop 每个 socket 一个读协程
func (m *Manager) readLoop(g uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mb.post(func() { m.handleClose(g, err) })
			return
		}
		m.mb.post(func() { m.handleFrame(g, data) })
	}
}

func (m *Manager) handleClose(g uint64, err error) {
	if g != m.gen {
		return
	}
	code, reason := websocket.CloseAbnormalClosure, err.Error()
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code, reason = closeErr.Code, closeErr.Text
	}

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.serverReady = false
	m.rejoining = false
	m.stopConnectTimer()
	if code != websocket.CloseNormalClosure {
		m.lastErr = errorx.Wrapf(err, errorx.CodeTransport, "socket closed with code %d", code)
	}

	m.log.Info("socket closed", zap.Int("code", code), zap.String("reason", reason))
	m.setState(StateDisconnected)
	m.bus.emit(DisconnectedEvent{Code: code, Reason: reason})

	if m.manualStop || code == websocket.CloseNormalClosure {
		return
	}
	m.scheduleReconnect()
}

// scheduleReconnect 按退避策略安排下一次重连，次数用尽时进入 error
func (m *Manager) scheduleReconnect() {
	if m.attempts >= m.cfg.MaxAttempts {
		m.log.Warn("max reconnect attempts reached", zap.Int("attempts", m.attempts))
		m.setState(StateError)
		m.bus.emit(MaxReconnectAttemptsReachedEvent{Attempts: m.attempts})
		return
	}

	m.attempts++
	delay := m.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = m.cfg.MaxDelay
	}
	metrics.IncReconnectAttempt()
	m.log.Info("schedule reconnect", zap.Int("attempt", m.attempts), zap.Duration("delay", delay))
	m.setState(StateConnecting)
	m.bus.emit(ReconnectAttemptEvent{Attempt: m.attempts, Delay: delay})

	m.stopRetryTimer()
	g := m.gen
	m.retryTimer = time.AfterFunc(delay, func() {
		m.mb.post(func() { m.handleRetry(g) })
	})
}

func (m *Manager) handleRetry(g uint64) {
	if g != m.gen || m.manualStop || m.disposed {
		return
	}
	m.retryTimer = nil
	m.openSocket()
}

func (m *Manager) startConnectTimer(g uint64) {
	m.stopConnectTimer()
	m.connectTimer = time.AfterFunc(m.cfg.ConnectTimeout, func() {
		m.mb.post(func() { m.handleConnectTimeout(g) })
	})
}

// handleConnectTimeout 超时未 ready，放弃本次连接并安排重连
func (m *Manager) handleConnectTimeout(g uint64) {
	if g != m.gen || m.serverReady || m.disposed {
		return
	}
	m.connectTimer = nil
	m.log.Warn("session not ready before timeout", zap.Duration("timeout", m.cfg.ConnectTimeout))

	wasOpen := m.conn != nil
	m.cancelDial()
	m.closeSocket(websocket.CloseNormalClosure, "ready timeout")
	m.gen++

	err := errorx.Newf(errorx.CodeTimeout, "not ready within %s", m.cfg.ConnectTimeout)
	m.lastErr = err
	if wasOpen {
		m.setState(StateDisconnected)
		m.bus.emit(DisconnectedEvent{Code: websocket.CloseAbnormalClosure, Reason: "ready timeout"})
	}
	m.bus.emit(ErrorEvent{Type: ErrorTimeout, Err: err})
	m.scheduleReconnect()
}

func (m *Manager) disconnect() {
	m.manualStop = true
	m.stopConnectTimer()
	m.stopRetryTimer()
	m.cancelDial()
	m.gen++
	m.closeSocket(websocket.CloseNormalClosure, "client disconnect")
	m.serverReady = false
	m.rejoining = false
	m.attempts = 0
	m.backoff.Reset()

	if m.state == StateDisconnected {
		return
	}
	m.setState(StateDisconnected)
	m.bus.emit(DisconnectedEvent{Code: websocket.CloseNormalClosure, Reason: "client disconnect"})
}

func (m *Manager) dispose() {
	m.disconnect()

	pending := m.queue
	m.queue = nil
	for _, item := range pending {
		m.markStatus(item, message_status_enum.Failed)
	}
	if len(pending) > 0 {
		m.log.Info("pending messages marked failed", zap.Int("count", len(pending)))
	}

	m.disposed = true
	m.mb.close()
}

func (m *Manager) joinChat(chatID string) {
	m.chatID = chatID
	if m.conn != nil && m.serverReady {
		m.rejoining = m.sendAuth()
		return
	}
	m.connect()
}

// ==================== 出站 ====================

func (m *Manager) sendAuth() bool {
	data, err := encodeAuth(m.token, m.chatID)
	if err != nil {
		m.log.Error("encode auth frame failed", zap.Error(err))
		return false
	}
	// 认证帧写失败不单独处理，最终表现为 ready 超时
	if err := m.write(data); err != nil {
		m.log.Warn("send auth frame failed", zap.Error(err))
		return false
	}
	metrics.IncOutboundFrame("auth")
	return true
}

func (m *Manager) send(msg OutboundMessage) {
	if m.state == StateReady && m.conn != nil {
		m.transmit(msg)
		return
	}
	m.queue = append(m.queue, msg)
	m.log.Debug("session not ready, message queued", zap.String("state", string(m.state)), zap.Int("queue_len", len(m.queue)))
	m.syncSnapshot()
	m.bus.emit(QueuedEvent{Message: msg, QueueLen: len(m.queue), State: m.state})
}

// flushQueue ready 后按 FIFO 发出队列；写失败时剩余消息留在队列等下一次 ready
func (m *Manager) flushQueue() {
	for len(m.queue) > 0 {
		if m.state != StateReady || m.conn == nil {
			return
		}
		item := m.queue[0]
		m.queue = m.queue[1:]
		if err := m.transmit(item); err != nil {
			return
		}
	}
	m.queue = nil
}

func (m *Manager) transmit(msg OutboundMessage) error {
	chatID := msg.ChatID
	if chatID == "" {
		chatID = m.chatID
	}
	data, err := encodeChatMessage(msg.Text, chatID, time.Now())
	if err != nil {
		m.log.Error("encode chat message failed", zap.Error(err))
		m.markStatus(msg, message_status_enum.Failed)
		return err
	}
	if err := m.write(data); err != nil {
		m.log.Warn("write chat message failed", zap.String("chat_id", chatID), zap.Error(err))
		m.markStatus(msg, message_status_enum.Failed)
		m.bus.emit(ErrorEvent{Type: ErrorTransport, ChatID: chatID, Err: err})
		return err
	}
	metrics.IncOutboundFrame("message")
	m.markStatus(msg, message_status_enum.Sent)
	return nil
}

func (m *Manager) markStatus(msg OutboundMessage, status message_status_enum.Status) {
	if msg.LocalID == "" || m.cache == nil {
		return
	}
	if err := m.cache.UpdateMessageStatus(msg.ChatID, msg.LocalID, status); err != nil {
		m.log.Warn("update message status failed",
			zap.String("chat_id", msg.ChatID),
			zap.String("local_id", msg.LocalID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

func (m *Manager) write(data []byte) error {
	if m.conn == nil {
		return errorx.ErrNotReady
	}
	if err := m.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout)); err != nil {
		return errorx.Wrap(err, errorx.CodeTransport, "set write deadline")
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errorx.Wrap(err, errorx.CodeTransport, "write frame")
	}
	return nil
}

// closeSocket 发送 close 帧后关闭，读协程随之退出
func (m *Manager) closeSocket(code int, reason string) {
	if m.conn == nil {
		return
	}
	deadline := time.Now().Add(constants.CLOSE_GRACE)
	if err := m.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		m.log.Debug("write close frame failed", zap.Error(err))
	}
	_ = m.conn.Close()
	m.conn = nil
}

func (m *Manager) cancelDial() {
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
}

func (m *Manager) stopConnectTimer() {
	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
}

func (m *Manager) stopRetryTimer() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// ==================== 入站 ====================

func (m *Manager) handleFrame(g uint64, data []byte) {
	if g != m.gen {
		return
	}
	frame, err := decodeFrame(data)
	if err != nil {
		m.log.Warn("drop malformed frame", zap.Error(err), zap.ByteString("frame", data))
		metrics.IncDroppedFrame("parse")
		return
	}

	switch {
	case frame.Type == frameReady:
		metrics.IncInboundFrame(frameReady)
		m.becomeReady(frame.ChatID)
	case frame.IsReply():
		metrics.IncInboundFrame("reply")
		m.handleReply(frame.ChatID, frame.ID, frame.FirstReply(), frame.Error)
	case frame.Type != "":
		m.handleLegacy(frame.Type, frame.ChatID, frame.UserID, frame.Payload)
	default:
		m.log.Info("drop unrecognized frame", zap.ByteString("frame", data))
		metrics.IncDroppedFrame("unrecognized")
	}
}

// becomeReady 服务端确认认证成功
func (m *Manager) becomeReady(chatID string) {
	m.rejoining = false
	if chatID != "" && chatID != m.chatID {
		m.assignChat(chatID)
	}
	if m.serverReady {
		return
	}
	m.serverReady = true
	m.attempts = 0
	m.backoff.Reset()
	m.stopConnectTimer()
	m.lastErr = nil
	m.setState(StateReady)
	m.bus.emit(ReadyEvent{ChatID: m.chatID})
	m.flushQueue()
}

// assignChat 服务端指定的会话 id 覆盖本地临时 id
func (m *Manager) assignChat(chatID string) {
	prev := m.chatID
	m.chatID = chatID

	if strings.HasPrefix(prev, constants.LOCAL_ID_PREFIX) {
		if m.cache != nil {
			if err := m.cache.RenameChat(prev, chatID); err != nil && !errorx.IsNotFound(err) {
				m.log.Warn("rename provisional chat failed", zap.String("from", prev), zap.String("to", chatID), zap.Error(err))
			}
		}
		for i := range m.queue {
			if m.queue[i].ChatID == prev {
				m.queue[i].ChatID = chatID
			}
		}
	}
	m.bus.emit(ChatAssignedEvent{Previous: prev, ChatID: chatID})
}

func (m *Manager) resolveChat(chatID string) string {
	if chatID != "" {
		return chatID
	}
	return m.chatID
}
