package respond

// StatusRespond 控制 API /status 返回
type StatusRespond struct {
	State         string `json:"state"`
	Attempts      int    `json:"attempts"`
	CurrentChatID string `json:"current_chat_id"`
	LastError     string `json:"last_error,omitempty"`
	QueueLen      int    `json:"queue_len"`
	UserEmail     string `json:"user_email,omitempty"`
}
