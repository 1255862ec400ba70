// Package cache 客户端的查询缓存层
// 会话与消息状态的唯一写入方：界面（本项目中是 CLI 与控制 API）只读，会话管理器通过这里的变更方法回写
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	myredis "mail_assistant_client/internal/dao/redis"
	"mail_assistant_client/internal/model"
	"mail_assistant_client/pkg/constants"
	"mail_assistant_client/pkg/enum/message/message_role_enum"
	"mail_assistant_client/pkg/enum/message/message_status_enum"
	"mail_assistant_client/pkg/errorx"
)

// ChatsKey 会话列表的查询 key
const ChatsKey = "chats"

// ChatKey 单个会话的查询 key
func ChatKey(chatID string) string {
	return "chat:" + chatID
}

// ErrMessageImmutable 已送达的消息不可修改
var ErrMessageImmutable = errorx.New(errorx.CodeInvalidParam, "message already delivered")

const persistTimeout = 3 * time.Second

// Listener 查询 key 变化时的回调
type Listener func(key string)

// QueryState 界面读取的加载/错误状态
type QueryState struct {
	Loading   bool
	Err       error
	UpdatedAt time.Time
}

// QueryCache 内存中的会话与消息缓存，变更异步写入持久化存储
type QueryCache struct {
	store myredis.AsyncCacheService

	mu       sync.RWMutex
	order    []string // 会话 id，最近活跃的在前
	chats    map[string]*model.Chat
	messages map[string][]model.Message
	states   map[string]QueryState

	subMu   sync.Mutex
	subs    map[string]map[int]Listener
	nextSub int

	// 串行化落盘任务，保证最后执行的任务写入最新快照
	persistMu sync.Mutex
}

// NewQueryCache 创建查询缓存，store 为 nil 时只保存在内存
func NewQueryCache(store myredis.AsyncCacheService) *QueryCache {
	return &QueryCache{
		store:    store,
		chats:    make(map[string]*model.Chat),
		messages: make(map[string][]model.Message),
		states:   make(map[string]QueryState),
		subs:     make(map[string]map[int]Listener),
	}
}

// MergeInboundMessage 合并一条收到的消息
// 会话不存在时补一个最小会话；消息 id 已存在时跳过，返回是否真正写入
func (c *QueryCache) MergeInboundMessage(chatID string, msg model.Message) bool {
	if chatID == "" || msg.ID == "" {
		return false
	}
	msg.ChatID = chatID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	c.mu.Lock()
	chat := c.ensureChatLocked(chatID, msg.Content)
	for i := range c.messages[chatID] {
		if c.messages[chatID][i].Matches(msg.ID) {
			c.mu.Unlock()
			return false
		}
	}
	c.messages[chatID] = append(c.messages[chatID], msg)
	chat.Touch(msg)
	c.bumpLocked(chatID)
	c.mu.Unlock()

	c.persistChat(chatID)
	c.notify(ChatKey(chatID), ChatsKey)
	return true
}

// AppendOptimisticMessage 乐观写入一条用户消息，调用返回时即可读到
func (c *QueryCache) AppendOptimisticMessage(chatID string, partial model.Message) model.Message {
	msg := partial
	msg.ID = constants.LOCAL_ID_PREFIX + uuid.NewString()
	msg.ChatID = chatID
	msg.Status = message_status_enum.Sending
	if msg.Role == "" {
		msg.Role = message_role_enum.User
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	c.mu.Lock()
	chat := c.ensureChatLocked(chatID, msg.Content)
	c.messages[chatID] = append(c.messages[chatID], msg)
	chat.Touch(msg)
	c.bumpLocked(chatID)
	c.mu.Unlock()

	c.persistChat(chatID)
	c.notify(ChatKey(chatID), ChatsKey)
	return msg
}

// UpdateMessageStatus 按本地 id 或服务端 id 更新消息状态
func (c *QueryCache) UpdateMessageStatus(chatID, id string, status message_status_enum.Status) error {
	if !status.Valid() {
		return errorx.Newf(errorx.CodeInvalidParam, "unknown message status %q", status)
	}
	err := c.mutateMessage(chatID, id, func(m *model.Message) error {
		if m.Immutable() {
			return ErrMessageImmutable
		}
		m.Status = status
		return nil
	})
	if err != nil {
		return err
	}
	c.persistChat(chatID)
	c.notify(ChatKey(chatID))
	return nil
}

// ConfirmMessage 记录服务端为乐观消息分配的 id，本地 id 保持不变
func (c *QueryCache) ConfirmMessage(chatID, localID, serverID string) error {
	if serverID == "" {
		return errorx.ErrInvalidParam
	}
	err := c.mutateMessage(chatID, localID, func(m *model.Message) error {
		m.ServerID = serverID
		if m.Status == message_status_enum.Sending || m.Status == message_status_enum.Failed {
			m.Status = message_status_enum.Sent
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.persistChat(chatID)
	c.notify(ChatKey(chatID))
	return nil
}

func (c *QueryCache) mutateMessage(chatID, id string, fn func(m *model.Message) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, ok := c.messages[chatID]
	if !ok {
		return errorx.Newf(errorx.CodeNotFound, "chat %s not found", chatID)
	}
	for i := range msgs {
		if msgs[i].Matches(id) {
			return fn(&msgs[i])
		}
	}
	return errorx.Newf(errorx.CodeNotFound, "message %s not found in chat %s", id, chatID)
}

// MarkDelivered 助手回复到达后，该会话所有 sent 状态的用户消息改为 delivered
func (c *QueryCache) MarkDelivered(chatID string) int {
	c.mu.Lock()
	n := 0
	msgs := c.messages[chatID]
	for i := range msgs {
		if msgs[i].Role == message_role_enum.User && msgs[i].Status == message_status_enum.Sent {
			msgs[i].Status = message_status_enum.Delivered
			n++
		}
	}
	c.mu.Unlock()

	if n > 0 {
		c.persistChat(chatID)
		c.notify(ChatKey(chatID))
	}
	return n
}

// RenameChat 服务端确认会话 id 后，把临时会话迁移到新 id
// 新 id 已存在时合并消息
func (c *QueryCache) RenameChat(oldID, newID string) error {
	if oldID == "" || newID == "" || oldID == newID {
		return nil
	}

	c.mu.Lock()
	chat, ok := c.chats[oldID]
	if !ok {
		c.mu.Unlock()
		return errorx.Newf(errorx.CodeNotFound, "chat %s not found", oldID)
	}
	moved := c.messages[oldID]
	delete(c.chats, oldID)
	delete(c.messages, oldID)
	c.removeOrderLocked(oldID)

	target, exists := c.chats[newID]
	if !exists {
		chat.ID = newID
		chat.Provisional = false
		c.chats[newID] = chat
		target = chat
	}
	existing := c.messages[newID]
	for _, m := range moved {
		m.ChatID = newID
		dup := false
		for i := range existing {
			if existing[i].Matches(m.ID) {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, m)
		}
	}
	c.messages[newID] = existing
	if n := len(existing); n > 0 {
		target.Touch(existing[n-1])
	}
	c.bumpLocked(newID)
	c.mu.Unlock()

	c.persistChat(oldID)
	c.persistChat(newID)
	c.notify(ChatKey(oldID), ChatKey(newID), ChatsKey)
	zap.L().Info("会话 id 已确认", zap.String("from", oldID), zap.String("to", newID))
	return nil
}

// RemoveChat 删除会话及其全部消息
func (c *QueryCache) RemoveChat(chatID string) bool {
	c.mu.Lock()
	_, ok := c.chats[chatID]
	delete(c.chats, chatID)
	delete(c.messages, chatID)
	delete(c.states, ChatKey(chatID))
	c.removeOrderLocked(chatID)
	c.mu.Unlock()

	if !ok {
		return false
	}
	c.persistChat(chatID)
	c.notify(ChatKey(chatID), ChatsKey)
	return true
}

// Clear 清空全部会话（退出登录）
func (c *QueryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.order = nil
	c.chats = make(map[string]*model.Chat)
	c.messages = make(map[string][]model.Message)
	c.states = make(map[string]QueryState)
	c.mu.Unlock()

	c.notify(ChatsKey)
	if c.store == nil {
		return nil
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	return c.store.DeleteByPattern(ctx, "chat_*")
}

// Chats 按最近活跃排序的会话列表
func (c *QueryCache) Chats() []model.Chat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Chat, 0, len(c.order))
	for _, id := range c.order {
		if chat, ok := c.chats[id]; ok {
			out = append(out, *chat)
		}
	}
	return out
}

// Chat 单个会话的元数据
func (c *QueryCache) Chat(chatID string) (model.Chat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chat, ok := c.chats[chatID]
	if !ok {
		return model.Chat{}, false
	}
	return *chat, true
}

// Messages 会话消息副本，按插入顺序
func (c *QueryCache) Messages(chatID string) []model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := c.messages[chatID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Message 按本地 id 或服务端 id 查找消息
func (c *QueryCache) Message(chatID, id string) (model.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.messages[chatID] {
		if m.Matches(id) {
			return m, true
		}
	}
	return model.Message{}, false
}

// SetLoading 标记某个查询正在加载
func (c *QueryCache) SetLoading(key string, loading bool) {
	c.mu.Lock()
	st := c.states[key]
	st.Loading = loading
	if !loading {
		st.UpdatedAt = time.Now()
	}
	c.states[key] = st
	c.mu.Unlock()
	c.notify(key)
}

// SetQueryError 记录查询错误，err 为 nil 时清除
func (c *QueryCache) SetQueryError(key string, err error) {
	c.mu.Lock()
	st := c.states[key]
	st.Err = err
	st.Loading = false
	st.UpdatedAt = time.Now()
	c.states[key] = st
	c.mu.Unlock()
	c.notify(key)
}

// QueryState 查询的加载/错误状态
func (c *QueryCache) QueryState(key string) QueryState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[key]
}

// Subscribe 订阅 key 的变化，返回取消函数
func (c *QueryCache) Subscribe(key string, fn Listener) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextSub++
	id := c.nextSub
	if c.subs[key] == nil {
		c.subs[key] = make(map[int]Listener)
	}
	c.subs[key][id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs[key], id)
	}
}

func (c *QueryCache) notify(keys ...string) {
	var fns []func()
	c.subMu.Lock()
	for _, key := range keys {
		for _, fn := range c.subs[key] {
			fn, key := fn, key
			fns = append(fns, func() { fn(key) })
		}
	}
	c.subMu.Unlock()

	for _, call := range fns {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					zap.L().Error("cache listener panic", zap.Any("recover", rec))
				}
			}()
			call()
		}()
	}
}

// ensureChatLocked 会话不存在时补一个最小会话，调用方持有写锁
func (c *QueryCache) ensureChatLocked(chatID, firstContent string) *model.Chat {
	chat, ok := c.chats[chatID]
	if ok {
		return chat
	}
	chat = &model.Chat{
		ID:          chatID,
		Title:       titleFrom(firstContent),
		Provisional: strings.HasPrefix(chatID, constants.LOCAL_ID_PREFIX),
	}
	c.chats[chatID] = chat
	c.order = append([]string{chatID}, c.order...)
	return chat
}

func (c *QueryCache) bumpLocked(chatID string) {
	c.removeOrderLocked(chatID)
	c.order = append([]string{chatID}, c.order...)
}

func (c *QueryCache) removeOrderLocked(chatID string) {
	for i, id := range c.order {
		if id == chatID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

const titleLen = 40

// titleFrom 取首行作为会话标题
func titleFrom(content string) string {
	line := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
	if line == "" {
		return "New chat"
	}
	r := []rune(line)
	if len(r) > titleLen {
		return string(r[:titleLen]) + "…"
	}
	return line
}

// ==================== 持久化 ====================

// persistChat 异步把会话的当前状态写入存储；会话已删除时删除对应 key
// 任务执行时才读取快照，多次提交最终收敛到最新状态
func (c *QueryCache) persistChat(chatID string) {
	if c.store == nil {
		return
	}
	c.store.SubmitTask(func() {
		c.persistMu.Lock()
		defer c.persistMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		c.mu.RLock()
		chat, ok := c.chats[chatID]
		var metaJSON, msgsJSON []byte
		var err error
		if ok {
			metaJSON, err = json.Marshal(chat)
			if err == nil {
				msgsJSON, err = json.Marshal(c.messages[chatID])
			}
		}
		listJSON, listErr := json.Marshal(c.order)
		c.mu.RUnlock()

		if err != nil || listErr != nil {
			zap.L().Error("encode chat snapshot failed", zap.String("chat_id", chatID), zap.Error(err), zap.NamedError("list_error", listErr))
			return
		}

		if ok {
			if err := c.store.Set(ctx, constants.KEY_CHAT_META+chatID, string(metaJSON), 0); err != nil {
				zap.L().Warn("persist chat meta failed", zap.String("chat_id", chatID), zap.Error(err))
			}
			if err := c.store.Set(ctx, constants.KEY_CHAT_MESSAGES+chatID, string(msgsJSON), 0); err != nil {
				zap.L().Warn("persist chat messages failed", zap.String("chat_id", chatID), zap.Error(err))
			}
		} else {
			if err := c.store.Delete(ctx, constants.KEY_CHAT_META+chatID); err != nil {
				zap.L().Warn("delete chat meta failed", zap.String("chat_id", chatID), zap.Error(err))
			}
			if err := c.store.Delete(ctx, constants.KEY_CHAT_MESSAGES+chatID); err != nil {
				zap.L().Warn("delete chat messages failed", zap.String("chat_id", chatID), zap.Error(err))
			}
		}
		if err := c.store.Set(ctx, constants.KEY_CHAT_LIST, string(listJSON), 0); err != nil {
			zap.L().Warn("persist chat list failed", zap.Error(err))
		}
	})
}

// Hydrate 启动时从存储加载会话，内存中已有的会话不被覆盖
func (c *QueryCache) Hydrate(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	c.SetLoading(ChatsKey, true)

	listJSON, err := c.store.Get(ctx, constants.KEY_CHAT_LIST)
	if err != nil {
		c.SetQueryError(ChatsKey, err)
		return err
	}
	var ids []string
	if listJSON != "" {
		if err := json.Unmarshal([]byte(listJSON), &ids); err != nil {
			wrapped := errorx.Wrap(err, errorx.CodeCacheError, "decode chat list")
			c.SetQueryError(ChatsKey, wrapped)
			return wrapped
		}
	}

	type loaded struct {
		chat model.Chat
		msgs []model.Message
	}
	var items []loaded
	for _, id := range ids {
		metaJSON, err := c.store.Get(ctx, constants.KEY_CHAT_META+id)
		if err != nil {
			c.SetQueryError(ChatsKey, err)
			return err
		}
		if metaJSON == "" {
			continue
		}
		var item loaded
		if err := json.Unmarshal([]byte(metaJSON), &item.chat); err != nil {
			zap.L().Warn("skip corrupt chat meta", zap.String("chat_id", id), zap.Error(err))
			continue
		}
		msgsJSON, err := c.store.Get(ctx, constants.KEY_CHAT_MESSAGES+id)
		if err != nil {
			c.SetQueryError(ChatsKey, err)
			return err
		}
		if msgsJSON != "" {
			if err := json.Unmarshal([]byte(msgsJSON), &item.msgs); err != nil {
				zap.L().Warn("skip corrupt chat messages", zap.String("chat_id", id), zap.Error(err))
			}
		}
		items = append(items, item)
	}

	c.mu.Lock()
	for _, item := range items {
		id := item.chat.ID
		if _, exists := c.chats[id]; exists {
			continue
		}
		chat := item.chat
		c.chats[id] = &chat
		c.messages[id] = item.msgs
		c.order = append(c.order, id)
	}
	c.mu.Unlock()

	c.SetQueryError(ChatsKey, nil)
	zap.L().Info("查询缓存已加载", zap.Int("chats", len(items)))
	return nil
}
