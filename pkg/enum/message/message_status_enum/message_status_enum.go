// Package message_status_enum 用户消息的投递状态
package message_status_enum

// Status 消息投递状态
type Status string

const (
	Sending   Status = "sending"   // 乐观写入，尚未发出
	Sent      Status = "sent"      // 已写入 socket
	Delivered Status = "delivered" // 服务端已响应，之后不可变
	Failed    Status = "failed"    // 发送失败，可手动重试
)

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case Sending, Sent, Delivered, Failed:
		return true
	}
	return false
}

// Final 到达 Delivered 后消息不再允许修改
func (s Status) Final() bool {
	return s == Delivered
}
