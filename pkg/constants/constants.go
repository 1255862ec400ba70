package constants

import "time"

const (
	CACHE_WORKER_NUM     = 4                          // 缓存异步写入 worker 数量
	CACHE_TASK_CHAN_SIZE = 1000                       // 缓存异步任务缓冲
	WRITE_WAIT           = 10 * time.Second           // 写帧超时
	CLOSE_GRACE          = time.Second                // 发送 close 帧的等待时间
	LOCAL_ID_PREFIX      = "local-"                   // 本地生成的乐观 ID 前缀
	DEFAULT_WS_PATH      = "/ws/chat"                 // 默认的聊天 WebSocket 路径
	DEFAULT_STORE_PATH   = "./data/mail_assistant.db" // 默认的本地存储文件
)

// 持久化存储 key
const (
	KEY_JWT_TOKEN     = "jwtToken"
	KEY_CURRENT_USER  = "currentUser"
	KEY_CHAT_LIST     = "chat_list"
	KEY_CHAT_META     = "chat_meta_"
	KEY_CHAT_MESSAGES = "chat_messages_"
)
