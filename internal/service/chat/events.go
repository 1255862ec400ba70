package chat

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"mail_assistant_client/internal/model"
)

// EventKind 会话事件类型（封闭集合）
type EventKind string

const (
	EventConnected                   EventKind = "connected"
	EventDisconnected                EventKind = "disconnected"
	EventError                       EventKind = "error"
	EventReconnectAttempt            EventKind = "reconnect_attempt"
	EventMaxReconnectAttemptsReached EventKind = "max_reconnect_attempts_reached"
	EventReady                       EventKind = "ready"
	EventStateChanged                EventKind = "state_changed"
	EventQueued                      EventKind = "queued"
	EventChatAssigned                EventKind = "chat_assigned"

	// 服务端下发
	EventReply      EventKind = "reply"
	EventMessage    EventKind = "message"
	EventTyping     EventKind = "typing"
	EventUserJoined EventKind = "user_joined"
	EventUserLeft   EventKind = "user_left"
)

// AllEventKinds 全部事件类型
var AllEventKinds = []EventKind{
	EventConnected, EventDisconnected, EventError, EventReconnectAttempt,
	EventMaxReconnectAttemptsReached, EventReady, EventStateChanged, EventQueued,
	EventChatAssigned, EventReply, EventMessage, EventTyping, EventUserJoined, EventUserLeft,
}

// Event 所有事件实现该接口，处理函数按具体类型断言
type Event interface {
	Kind() EventKind
}

// ErrorType 错误事件的来源
type ErrorType string

const (
	ErrorTransport   ErrorType = "transport"   // 建连或写帧失败
	ErrorTimeout     ErrorType = "timeout"     // 超时未 ready
	ErrorApplication ErrorType = "application" // 服务端返回的错误
	ErrorAuth        ErrorType = "auth"        // 本地没有可用 token
)

type ConnectedEvent struct{}

type DisconnectedEvent struct {
	Code   int
	Reason string
}

type ErrorEvent struct {
	Type   ErrorType
	ChatID string
	Err    error
}

type ReconnectAttemptEvent struct {
	Attempt int
	Delay   time.Duration
}

type MaxReconnectAttemptsReachedEvent struct {
	Attempts int
}

type ReadyEvent struct {
	ChatID string
}

type StateChangedEvent struct {
	From State
	To   State
}

// QueuedEvent 会话未就绪，消息进入待发送队列
type QueuedEvent struct {
	Message  OutboundMessage
	QueueLen int
	State    State
}

// ChatAssignedEvent 服务端在 ready 时指定了会话 id
type ChatAssignedEvent struct {
	Previous string
	ChatID   string
}

type ReplyEvent struct {
	ChatID  string
	Message model.Message
}

type MessageEvent struct {
	ChatID  string
	UserID  string
	Message model.Message
	LocalID string // 非空表示服务端确认了本地乐观消息
}

type TypingEvent struct {
	ChatID   string
	UserID   string
	IsTyping bool
}

type UserJoinedEvent struct {
	ChatID string
	UserID string
	Name   string
}

type UserLeftEvent struct {
	ChatID string
	UserID string
	Name   string
}

func (ConnectedEvent) Kind() EventKind { return EventConnected }
func (DisconnectedEvent) Kind() EventKind { return EventDisconnected }
func (ErrorEvent) Kind() EventKind { return EventError }
func (ReconnectAttemptEvent) Kind() EventKind { return EventReconnectAttempt }
func (MaxReconnectAttemptsReachedEvent) Kind() EventKind { return EventMaxReconnectAttemptsReached }
func (ReadyEvent) Kind() EventKind { return EventReady }
func (StateChangedEvent) Kind() EventKind { return EventStateChanged }
func (QueuedEvent) Kind() EventKind { return EventQueued }
func (ChatAssignedEvent) Kind() EventKind { return EventChatAssigned }
func (ReplyEvent) Kind() EventKind { return EventReply }
func (MessageEvent) Kind() EventKind { return EventMessage }
func (TypingEvent) Kind() EventKind { return EventTyping }
func (UserJoinedEvent) Kind() EventKind { return EventUserJoined }
func (UserLeftEvent) Kind() EventKind { return EventUserLeft }

// Handler 事件处理函数，在事件循环协程上执行
type Handler func(Event)

// Subscription On 的返回值，用于 Off
type Subscription struct {
	kind EventKind
	id   uint64
}

type handlerEntry struct {
	id uint64
	fn Handler
}

// eventBus 同一类型可注册多个处理函数，按注册顺序调用
type eventBus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventKind][]handlerEntry
	log      *zap.Logger
}

func newEventBus(log *zap.Logger) *eventBus {
	return &eventBus{handlers: make(map[EventKind][]handlerEntry), log: log}
}

func (b *eventBus) on(kind EventKind, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[kind] = append(b.handlers[kind], handlerEntry{id: b.nextID, fn: fn})
	return Subscription{kind: kind, id: b.nextID}
}

func (b *eventBus) off(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[sub.kind]
	for i, h := range list {
		if h.id == sub.id {
			b.handlers[sub.kind] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// emit 处理函数的 panic 被记录后吞掉
func (b *eventBus) emit(ev Event) {
	b.mu.RLock()
	list := b.handlers[ev.Kind()]
	b.mu.RUnlock()

	for _, h := range list {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					b.log.Error("event handler panic", zap.String("event", string(ev.Kind())), zap.Any("recover", rec))
				}
			}()
			h.fn(ev)
		}()
	}
}
