package session

import "AuditLumaDash/internal/auditluma"

// 本地存储键名：会话快照与原始令牌分开存放，
// 令牌键由 HTTP 客户端在每次请求前直接读取
const (
	StorageKeySession = "auth-storage"
	StorageKeyToken   = "auth_token"
)

// 免登录模式的哨兵令牌与默认管理员账号。
// 仅当配置 auth_mode 为 noauth 且凭据完全匹配时才会在本地放行。
const (
	NoAuthToken    = "dummy-token-for-noauth-mode"
	NoAuthUsername = "admin"
	NoAuthPassword = "admin"
)

// persistedState 会话的持久化子集，重启后恢复
type persistedState struct {
	User            *auditluma.User `json:"user"`
	Token           string          `json:"token"`
	IsAuthenticated bool            `json:"isAuthenticated"`
}

// Snapshot 会话状态的只读副本，供视图层渲染
type Snapshot struct {
	User            *auditluma.User `json:"user"`
	Token           string          `json:"token,omitempty"`
	IsAuthenticated bool            `json:"isAuthenticated"`
	IsLoading       bool            `json:"isLoading"`
	Error           string          `json:"error,omitempty"`
}

// LoginRequest 登录请求结构
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse 登录响应结构
type LoginResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Token   string          `json:"token,omitempty"`
	User    *auditluma.User `json:"user,omitempty"`
}
