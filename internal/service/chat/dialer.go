package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mail_assistant_client/pkg/errorx"
)

// Conn 会话使用的 socket 能力，*websocket.Conn 直接满足
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer 建立到聊天端点的连接
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// GorillaDialer 基于 gorilla/websocket 的 Dialer
type GorillaDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d *GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, errorx.Wrapf(err, errorx.CodeTransport, "dial %s: http %d", url, resp.StatusCode)
		}
		return nil, errorx.Wrapf(err, errorx.CodeTransport, "dial %s", url)
	}
	return conn, nil
}
