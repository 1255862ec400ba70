package redis

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"mail_assistant_client/pkg/errorx"
)

// SQLiteCache 单文件键值存储，未开启 Redis 时的默认实现
// 过期时间以毫秒时间戳保存，读取时判断，0 表示不过期
type SQLiteCache struct {
	db   *sql.DB
	path string
	pool *taskPool
}

// NewSQLiteCache 打开（必要时创建）dbPath 处的数据库文件
func NewSQLiteCache(ctx context.Context, dbPath string, workerNum, taskChanSize int) (*SQLiteCache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "create store directory for %s", dbPath)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "open store %s", dbPath)
	}
	// SQLite 只有一个写者，单连接避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "ping store %s", dbPath)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	zap.L().Info("sqlite store opened", zap.String("path", dbPath))
	return &SQLiteCache{
		db:   db,
		path: dbPath,
		pool: newTaskPool("sqlite", workerNum, taskChanSize),
	}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expire_at INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return errorx.Wrap(err, errorx.CodeCacheError, "create store schema")
	}
	return nil
}

func expireAt(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return time.Now().Add(ttl).UnixMilli()
}

// Set 设置键值对，ttl 为 0 表示不过期
func (s *SQLiteCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	query := `
		INSERT INTO kv (key, value, expire_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expire_at = excluded.expire_at`
	if _, err := s.db.ExecContext(ctx, query, key, value, expireAt(ttl)); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "sqlite set key %s", key)
	}
	return nil
}

// lookup 返回值与是否存在，过期的键视为不存在
func (s *SQLiteCache) lookup(ctx context.Context, key string) (string, bool, error) {
	var value string
	var exp int64
	err := s.db.QueryRowContext(ctx, `SELECT value, expire_at FROM kv WHERE key = ?`, key).Scan(&value, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errorx.Wrapf(err, errorx.CodeCacheError, "sqlite get key %s", key)
	}
	if exp != 0 && time.Now().UnixMilli() > exp {
		return "", false, nil
	}
	return value, true, nil
}

// Get 获取键对应的值（键不存在返回空字符串和 nil）
func (s *SQLiteCache) Get(ctx context.Context, key string) (string, error) {
	value, _, err := s.lookup(ctx, key)
	return value, err
}

// GetOrError 获取键对应的值（键不存在返回 CodeNotFound 错误）
func (s *SQLiteCache) GetOrError(ctx context.Context, key string) (string, error) {
	value, ok, err := s.lookup(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errorx.Newf(errorx.CodeNotFound, "sqlite key %s not found", key)
	}
	return value, nil
}

// Delete 删除键（如果存在）
func (s *SQLiteCache) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "sqlite delete key %s", key)
	}
	return nil
}

// DeleteByPattern SQLite 的 GLOB 与 Redis 的 glob 语法一致，区分大小写
func (s *SQLiteCache) DeleteByPattern(ctx context.Context, pattern string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key GLOB ?`, pattern); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "sqlite delete pattern %s", pattern)
	}
	return nil
}

// SubmitTask 提交异步任务，队列满或已关闭时同步执行
func (s *SQLiteCache) SubmitTask(action func()) {
	s.pool.submit(action)
}

// Close 排空任务队列后关闭数据库
func (s *SQLiteCache) Close() error {
	if !s.pool.stop() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "close store %s", s.path)
	}
	return nil
}

var _ AsyncCacheService = (*SQLiteCache)(nil)
