// Package config 提供客户端的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找，并允许 .env / 环境变量覆盖
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"mail_assistant_client/pkg/constants"
)

// MainConfig 主配置
type MainConfig struct {
	AppName         string `toml:"appName"`         // 应用名称，用于日志标识等
	Mode            string `toml:"mode"`            // dev / release
	APIBaseURL      string `toml:"apiBaseURL"`      // 后端 HTTP 地址，如 https://api.example.com
	WsPath          string `toml:"wsPath"`          // 聊天 WebSocket 路径
	EnableWebSocket bool   `toml:"enableWebSocket"` // 是否启用实时通道
}

// SessionConfig 会话连接与重连参数
type SessionConfig struct {
	BaseDelay      Duration `toml:"baseDelay"`      // 第一次重连的等待时间，之后每次翻倍
	MaxDelay       Duration `toml:"maxDelay"`       // 单次等待的上限
	MaxAttempts    int      `toml:"maxAttempts"`    // 连续重连的最大次数
	ConnectTimeout Duration `toml:"connectTimeout"` // 建连到 ready 的超时时间
	WriteTimeout   Duration `toml:"writeTimeout"`   // 写帧超时
	LegacyWelcome  bool     `toml:"legacyWelcome"`  // 是否按文本识别欢迎消息（兼容旧服务端）
}

// RedisConfig Redis 存储配置，关闭时使用 StoreConfig 指定的本地文件
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
	Db       int    `toml:"db"`
}

// StoreConfig 本地文件存储配置，Path 为空时只保存在内存中
type StoreConfig struct {
	Path string `toml:"path"` // SQLite 数据库文件路径
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// AuthConfig 本地 token 存储配置
type AuthConfig struct {
	StorageKey   string   `toml:"storageKey"`   // 非空时 jwtToken 加密后落盘
	ExpiryLeeway Duration `toml:"expiryLeeway"` // 判断 token 过期时允许的时钟偏差
	Token        string   `toml:"token"`        // 启动时注入的 token（一般来自环境变量）
}

// ControlConfig 本地控制 API 配置
type ControlConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Token   string `toml:"token"` // 非空时要求 Authorization: Bearer <token>
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"`
}

// Config 客户端总配置
type Config struct {
	MainConfig      `toml:"mainConfig"`
	SessionConfig   `toml:"sessionConfig"`
	RedisConfig     `toml:"redisConfig"`
	StoreConfig     `toml:"storeConfig"`
	LogConfig       `toml:"logConfig"`
	AuthConfig      `toml:"authConfig"`
	ControlConfig   `toml:"controlConfig"`
	SnowflakeConfig `toml:"snowflakeConfig"`
}

// Duration 支持 "500ms" / "2s" 形式的 TOML 字段
type Duration struct {
	time.Duration
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText 实现 encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		MainConfig: MainConfig{
			AppName:         "mail_assistant_client",
			Mode:            "dev",
			APIBaseURL:      "http://localhost:8000",
			WsPath:          constants.DEFAULT_WS_PATH,
			EnableWebSocket: true,
		},
		SessionConfig: SessionConfig{
			BaseDelay:      Duration{time.Second},
			MaxDelay:       Duration{30 * time.Second},
			MaxAttempts:    5,
			ConnectTimeout: Duration{10 * time.Second},
			WriteTimeout:   Duration{constants.WRITE_WAIT},
			LegacyWelcome:  true,
		},
		RedisConfig: RedisConfig{
			Host: "127.0.0.1",
			Port: 6379,
		},
		StoreConfig: StoreConfig{
			Path: constants.DEFAULT_STORE_PATH,
		},
		LogConfig: LogConfig{
			LogPath: "./logs",
			Level:   "info",
		},
		AuthConfig: AuthConfig{
			ExpiryLeeway: Duration{30 * time.Second},
		},
		ControlConfig: ControlConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8787,
		},
		SnowflakeConfig: SnowflakeConfig{MachineID: 1},
	}
}

// config 全局配置单例，延迟加载
var config *Config

// searchPaths 候选配置文件路径（优先加载本地配置）
var searchPaths = []string{
	"configs/config_local.toml",
	"configs/config.toml",
	"../../configs/config_local.toml",
	"../../configs/config.toml",
}

// LoadConfig 从多个候选路径加载配置文件，找到第一个可用的即停止
func LoadConfig() (*Config, error) {
	for _, path := range searchPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return Load(path)
	}
	cfg := Default()
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, fmt.Errorf("could not find configuration file in any of the search paths")
}

// Load 加载指定的配置文件，未出现的字段保留默认值
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// GetConfig 获取全局配置实例（单例模式）
// 首次调用时会自动加载配置文件，找不到文件时使用默认值
func GetConfig() *Config {
	if config == nil {
		cfg, err := LoadConfig()
		if cfg == nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			cfg = Default()
		}
		config = cfg
	}
	return config
}

// applyEnv 读取 .env 与环境变量覆盖
func applyEnv(cfg *Config) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	if v, ok := os.LookupEnv("API_BASE_URL"); ok && v != "" {
		cfg.APIBaseURL = v
	}
	if v, ok := os.LookupEnv("JWT_TOKEN"); ok && v != "" {
		cfg.AuthConfig.Token = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		cfg.LogConfig.Level = v
	}
	if v, ok := os.LookupEnv("REDIS_ENABLED"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.RedisConfig.Enabled = b
		}
	}
	if v, ok := os.LookupEnv("STORE_PATH"); ok {
		cfg.StoreConfig.Path = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("ENABLE_WEBSOCKET"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.EnableWebSocket = b
		}
	}
}

// Validate 检查必填字段
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("apiBaseURL cannot be empty")
	}
	if _, err := WebSocketURL(c.APIBaseURL, c.WsPath); err != nil {
		return err
	}
	if c.MaxAttempts < 0 {
		return errors.New("maxAttempts must be >= 0")
	}
	if c.BaseDelay.Duration <= 0 {
		return errors.New("baseDelay must be > 0")
	}
	if c.ConnectTimeout.Duration <= 0 {
		return errors.New("connectTimeout must be > 0")
	}
	return nil
}

// WebSocketURL 由 HTTP API 地址推导聊天 WebSocket 地址
// http:// -> ws://，https:// -> wss://，并追加固定路径
func WebSocketURL(apiBaseURL, wsPath string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(apiBaseURL))
	if err != nil {
		return "", fmt.Errorf("parse apiBaseURL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported apiBaseURL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("apiBaseURL %q has no host", apiBaseURL)
	}
	if wsPath == "" {
		wsPath = constants.DEFAULT_WS_PATH
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(wsPath, "/")
	return u.String(), nil
}

// ChatURL 当前配置下的聊天 WebSocket 地址
func (c *Config) ChatURL() string {
	u, _ := WebSocketURL(c.APIBaseURL, c.WsPath)
	return u
}
