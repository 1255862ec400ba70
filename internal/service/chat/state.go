package chat

// State 会话连接状态
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected" // socket 已打开，等待服务端 ready
	StateReady        State = "ready"     // 可以发送用户消息
	StateError        State = "error"     // 重连次数用尽，等待手动 Connect
)

func (s State) String() string {
	return string(s)
}

// Active 正在连接或已连接，此时 Connect 为空操作
func (s State) Active() bool {
	return s == StateConnecting || s == StateConnected || s == StateReady
}

// Snapshot 供其它协程读取的会话状态快照
type Snapshot struct {
	State         State
	Attempts      int
	CurrentChatID string
	LastError     error
	QueueLen      int
}
