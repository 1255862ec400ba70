package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"mail_assistant_client/internal/app"
	"mail_assistant_client/internal/config"
	"mail_assistant_client/internal/infrastructure/logger"
	"mail_assistant_client/internal/service/chat"
)

const usage = `commands:
  /join <chat_id>   switch chat
  /new <text>       start a new chat
  /connect          reconnect
  /disconnect       disconnect
  /status           show session status
  /quit             exit
anything else is sent to the current chat`

func main() {
	// 1. 加载配置
	conf := config.GetConfig()

	// 2. 初始化日志
	if _, err := logger.Init(&conf.LogConfig, conf.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	// 3. 组装客户端
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, conf)
	if err != nil {
		zap.L().Fatal("init client failed", zap.Error(err))
	}
	printEvents(a.Manager)

	// 4. 启动
	if err := a.Run(ctx); err != nil {
		zap.L().Fatal("start client failed", zap.Error(err))
	}
	if addr := a.ControlAddr(); addr != "" {
		fmt.Printf("control api on http://%s\n", addr)
	}
	fmt.Println(usage)

	lines := make(chan string)
	go readLines(lines)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || !handleLine(ctx, a, line) {
				break loop
			}
		}
	}

	// 5. 退出
	if err := a.Close(); err != nil {
		zap.L().Error("close client failed", zap.Error(err))
	}
}

func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// handleLine 处理一行输入，返回 false 表示退出
func handleLine(ctx context.Context, a *app.App, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	msgs := a.Services.Message
	var err error
	switch cmd {
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Println(usage)
	case "/join":
		err = msgs.JoinChat(ctx, arg)
	case "/new":
		_, err = msgs.SendMessage(ctx, "", arg)
	case "/connect":
		err = a.Services.Session.Connect(ctx)
	case "/disconnect":
		a.Services.Session.Disconnect(ctx)
	case "/status":
		st := a.Services.Session.Status(ctx)
		fmt.Printf("state=%s chat=%s attempts=%d queued=%d %s\n", st.State, st.CurrentChatID, st.Attempts, st.QueueLen, st.LastError)
	default:
		_, err = msgs.SendMessage(ctx, a.Manager.CurrentChatID(), line)
	}
	if err != nil {
		fmt.Printf("! %v\n", err)
	}
	return true
}

// printEvents 把会话事件打印到终端
func printEvents(m *chat.Manager) {
	m.On(chat.EventReply, func(ev chat.Event) {
		e := ev.(chat.ReplyEvent)
		fmt.Printf("assistant> %s\n", e.Message.Content)
	})
	m.On(chat.EventMessage, func(ev chat.Event) {
		e := ev.(chat.MessageEvent)
		fmt.Printf("%s> %s\n", e.Message.Role, e.Message.Content)
	})
	m.On(chat.EventStateChanged, func(ev chat.Event) {
		e := ev.(chat.StateChangedEvent)
		fmt.Printf("* %s -> %s\n", e.From, e.To)
	})
	m.On(chat.EventReady, func(ev chat.Event) {
		fmt.Printf("* ready, chat %s\n", ev.(chat.ReadyEvent).ChatID)
	})
	m.On(chat.EventQueued, func(ev chat.Event) {
		fmt.Printf("* queued (%d pending)\n", ev.(chat.QueuedEvent).QueueLen)
	})
	m.On(chat.EventReconnectAttempt, func(ev chat.Event) {
		e := ev.(chat.ReconnectAttemptEvent)
		fmt.Printf("* reconnecting in %s (attempt %d)\n", e.Delay, e.Attempt)
	})
	m.On(chat.EventMaxReconnectAttemptsReached, func(chat.Event) {
		fmt.Println("* gave up reconnecting, type /connect to retry")
	})
	m.On(chat.EventError, func(ev chat.Event) {
		e := ev.(chat.ErrorEvent)
		fmt.Printf("! %s: %v\n", e.Type, e.Err)
	})
}
