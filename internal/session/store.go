package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"AuditLumaDash/internal/auditluma"
	"AuditLumaDash/internal/config"
	log "AuditLumaDash/internal/log"
	"AuditLumaDash/internal/storage"
)

// Backend 会话层依赖的后端能力，便于测试替换
type Backend interface {
	Login(ctx context.Context, username, password string) (*auditluma.LoginResult, error)
	Me(ctx context.Context) (*auditluma.User, error)
}

// Store 会话状态存储。显式构造、注入依赖，应用启动时创建一次，
// 从本地存储恢复持久化子集，登出时显式销毁。
// 不变量：isAuthenticated 为 true 当且仅当 user 与 token 均非空。
type Store struct {
	backend  Backend
	resolver config.Resolver
	local    *storage.Store

	mu              sync.Mutex
	user            *auditluma.User
	token           string
	isAuthenticated bool
	isLoading       bool
	lastError       string
	// seq 登录请求序号，用于丢弃过期的并发响应
	seq uint64
}

// NewStore 创建会话存储并从本地存储恢复状态
func NewStore(backend Backend, resolver config.Resolver, local *storage.Store) *Store {
	s := &Store{
		backend:  backend,
		resolver: resolver,
		local:    local,
	}
	s.hydrate()
	return s
}

// hydrate 从持久化快照恢复会话；快照不满足不变量时按未登录处理
func (s *Store) hydrate() {
	raw, err := s.local.Get(StorageKeySession)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warnf("恢复会话快照失败: %v", err)
		}
		return
	}

	var state persistedState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		log.Warnf("解析会话快照失败: %v", err)
		return
	}

	if state.User == nil || state.Token == "" {
		return
	}

	s.mu.Lock()
	s.user = state.User
	s.token = state.Token
	s.isAuthenticated = true
	s.mu.Unlock()
}

// State 返回当前会话状态的副本
func (s *Store) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		User:            s.user,
		Token:           s.token,
		IsAuthenticated: s.isAuthenticated,
		IsLoading:       s.isLoading,
		Error:           s.lastError,
	}
}

// Login 用户登录。成功要求响应携带令牌；失败时重新读取配置，
// 免登录模式且凭据为默认管理员账号时在本地放行（不经过后端），
// 否则原样返回后端错误并保持未登录状态。
func (s *Store) Login(ctx context.Context, username, password string) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.isLoading = true
	s.lastError = ""
	s.mu.Unlock()

	result, err := s.backend.Login(ctx, username, password)
	if err == nil && (result == nil || result.Token == "") {
		err = errors.New("登录响应中没有找到令牌")
	}

	if err == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		// 更晚的登录请求已发出，丢弃本次响应
		if seq != s.seq {
			return nil
		}
		s.applyLogin(result.User, result.Token)
		return nil
	}

	// 检查是否满足免登录回退条件
	cfg := s.resolver.Load(ctx)
	if cfg.AuthMode == config.AuthModeNoAuth && username == NoAuthUsername && password == NoAuthPassword {
		s.mu.Lock()
		defer s.mu.Unlock()
		if seq != s.seq {
			return nil
		}
		s.applyLogin(&auditluma.User{
			ID:       "admin",
			Username: "admin",
			Role:     "admin",
		}, NoAuthToken)
		log.Infof("免登录模式放行默认管理员账户")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return nil
	}
	s.isLoading = false
	s.lastError = err.Error()
	return err
}

// applyLogin 写入已登录状态并持久化，调用方需持有锁
func (s *Store) applyLogin(user *auditluma.User, token string) {
	s.user = user
	s.token = token
	s.isAuthenticated = true
	s.isLoading = false
	s.lastError = ""

	if err := s.local.Set(StorageKeyToken, token); err != nil {
		log.Warnf("持久化令牌失败: %v", err)
	}
	s.persistSnapshot()
}

// Logout 登出：清除持久化令牌并重置为未登录。
// 不调用后端（服务端会话失效不在范围内）。
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// CheckAuthStatus 校验当前会话。本地无令牌时直接置为未登录并返回，
// 不发起网络请求；有令牌时调用后端校验，任何失败都清除令牌并重置，
// 错误只记录日志不向调用方抛出（该方法在每个受保护页面挂载时执行）。
func (s *Store) CheckAuthStatus(ctx context.Context) {
	token, err := s.local.Get(StorageKeyToken)
	if err != nil || token == "" {
		s.mu.Lock()
		s.reset()
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.isLoading = true
	s.mu.Unlock()

	user, err := s.backend.Me(ctx)
	if err != nil || user == nil {
		if err != nil {
			log.Warnf("验证令牌失败: %v", err)
		}
		s.mu.Lock()
		s.reset()
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.token = token
	s.isAuthenticated = true
	s.isLoading = false
	s.persistSnapshot()
}

// reset 重置为未登录状态并清除持久化数据，调用方需持有锁。
// 序号递增使仍在途的登录响应失效，登出后不会被旧响应复活。
func (s *Store) reset() {
	s.seq++
	s.user = nil
	s.token = ""
	s.isAuthenticated = false
	s.isLoading = false

	if err := s.local.Delete(StorageKeyToken); err != nil {
		log.Warnf("清除令牌失败: %v", err)
	}
	s.persistSnapshot()
}

// persistSnapshot 写入持久化子集（user / token / isAuthenticated），
// isLoading 与 error 不持久化，调用方需持有锁
func (s *Store) persistSnapshot() {
	data, err := json.Marshal(persistedState{
		User:            s.user,
		Token:           s.token,
		IsAuthenticated: s.isAuthenticated,
	})
	if err != nil {
		log.Warnf("序列化会话快照失败: %v", err)
		return
	}
	if err := s.local.Set(StorageKeySession, string(data)); err != nil {
		log.Warnf("持久化会话快照失败: %v", err)
	}
}

// PersistedTokens 将本地存储适配为 HTTP 客户端的令牌来源
type PersistedTokens struct {
	Local *storage.Store
}

// Token 读取持久化令牌，不存在时返回空串
func (p *PersistedTokens) Token() string {
	token, err := p.Local.Get(StorageKeyToken)
	if err != nil {
		return ""
	}
	return token
}

// ClearToken 清除令牌与会话快照（401 时由 HTTP 客户端触发）
func (p *PersistedTokens) ClearToken() {
	if err := p.Local.Delete(StorageKeyToken); err != nil {
		log.Warnf("清除令牌失败: %v", err)
	}
	if err := p.Local.Delete(StorageKeySession); err != nil {
		log.Warnf("清除会话快照失败: %v", err)
	}
}
