package storage

import (
	"database/sql"
	"errors"
	"sync"
)

// ErrNotFound 键不存在
var ErrNotFound = errors.New("键不存在")

// Store 本地键值存储，承担浏览器 localStorage 的角色：
// 会话快照、原始令牌等需要在重启后保留的小块状态都放在这里。
// 读取优先走内存缓存，写入同时落库并更新缓存。
type Store struct {
	db    *sql.DB
	cache sync.Map
}

// NewStore 创建本地存储实例，需要传入数据库连接
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// initSchema 创建存储表（如不存在）
func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS "LocalState" (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updatedAt DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`)
	return err
}

// Get 读取键值（优先缓存）
func (s *Store) Get(key string) (string, error) {
	if value, ok := s.cache.Load(key); ok {
		return value.(string), nil
	}

	var value string
	err := s.db.QueryRow(`SELECT value FROM "LocalState" WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", err
	}

	s.cache.Store(key, value)
	return value, nil
}

// Set 写入键值（写库并更新缓存）
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO "LocalState" (key, value, updatedAt)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP;
	`, key, value)
	if err != nil {
		return err
	}

	s.cache.Store(key, value)
	return nil
}

// Delete 删除键（数据库 + 缓存），键不存在时静默成功
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM "LocalState" WHERE key = ?`, key); err != nil {
		return err
	}
	s.cache.Delete(key)
	return nil
}
