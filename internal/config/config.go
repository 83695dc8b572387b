package config

// AuthMode 认证模式枚举
type AuthMode string

const (
	// AuthModeLogin 标准登录模式，所有请求需携带有效令牌
	AuthModeLogin AuthMode = "login"
	// AuthModeNoAuth 免登录模式，允许 admin/admin 默认管理员直接进入
	AuthModeNoAuth AuthMode = "noauth"
)

// APIConfig 后端 API 访问配置
type APIConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	// Timeout 单位为秒，发起请求时转换为毫秒级超时
	Timeout int `json:"timeout" yaml:"timeout"`
}

// AppConfig 应用配置，由 /api/config 下发给前端，
// 同时被后端客户端在每次请求前读取
type AppConfig struct {
	AuthMode AuthMode  `json:"auth_mode" yaml:"auth_mode"`
	API      APIConfig `json:"api" yaml:"api"`
}

// 默认后端地址与超时，加载失败时兜底使用
const (
	DefaultBaseURL = "http://localhost:8000/api"
	DefaultTimeout = 30
)

// Default 返回硬编码的默认配置（免登录模式）
func Default() *AppConfig {
	return &AppConfig{
		AuthMode: AuthModeNoAuth,
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout,
		},
	}
}
