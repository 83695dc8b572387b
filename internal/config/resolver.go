package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	log "AuditLumaDash/internal/log"

	"gopkg.in/yaml.v3"
)

// Resolver 配置解析器接口。Load 从调用方视角永不失败：
// 任何读取/解析错误都会被吞掉（仅记录日志）并返回默认配置。
// 每次调用都重新加载，不做缓存，配置变更下一次请求即生效。
type Resolver interface {
	Load(ctx context.Context) *AppConfig
}

// FileResolver 从本地 YAML 配置文件加载配置
type FileResolver struct {
	path string
}

// NewFileResolver 创建文件配置解析器
func NewFileResolver(path string) *FileResolver {
	return &FileResolver{path: path}
}

// Load 读取并解析配置文件，失败时返回默认配置
func (r *FileResolver) Load(ctx context.Context) *AppConfig {
	data, err := os.ReadFile(r.path)
	if err != nil {
		log.Warnf("加载配置失败: %v，使用默认配置", err)
		return Default()
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Warnf("解析配置失败: %v，使用默认配置", err)
		return Default()
	}

	normalize(cfg)
	return cfg
}

// HTTPResolver 通过 HTTP 获取 JSON 配置（对应前端 fetch('/api/config')）
type HTTPResolver struct {
	url        string
	httpClient *http.Client
}

// NewHTTPResolver 创建 HTTP 配置解析器；httpClient 为空时使用 5 秒超时的默认客户端
func NewHTTPResolver(url string, httpClient *http.Client) *HTTPResolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPResolver{url: url, httpClient: httpClient}
}

// Load 发起 GET 请求获取配置，任何网络/解析失败都返回默认配置
func (r *HTTPResolver) Load(ctx context.Context) *AppConfig {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		log.Warnf("构造配置请求失败: %v，使用默认配置", err)
		return Default()
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		log.Warnf("加载配置失败: %v，使用默认配置", err)
		return Default()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warnf("加载配置失败: %s，使用默认配置", resp.Status)
		return Default()
	}

	cfg := Default()
	if err := json.NewDecoder(resp.Body).Decode(cfg); err != nil {
		log.Warnf("解析配置失败: %v，使用默认配置", err)
		return Default()
	}

	normalize(cfg)
	return cfg
}

// StaticResolver 返回固定配置，测试与免配置场景使用
type StaticResolver struct {
	cfg *AppConfig
}

// NewStaticResolver 创建固定配置解析器；cfg 为空时等价于默认配置
func NewStaticResolver(cfg *AppConfig) *StaticResolver {
	return &StaticResolver{cfg: cfg}
}

// Load 返回固定配置的副本
func (r *StaticResolver) Load(ctx context.Context) *AppConfig {
	if r.cfg == nil {
		return Default()
	}
	c := *r.cfg
	normalize(&c)
	return &c
}

// normalize 补齐缺失字段，保证调用方拿到的配置总是可用的
func normalize(cfg *AppConfig) {
	if cfg.AuthMode != AuthModeLogin && cfg.AuthMode != AuthModeNoAuth {
		cfg.AuthMode = AuthModeNoAuth
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = DefaultTimeout
	}
}

// TimeoutDuration 返回 API 超时时间（秒转 Duration）
func (c *AppConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.API.Timeout) * time.Second
}

// String 便于日志输出
func (c *AppConfig) String() string {
	return fmt.Sprintf("auth_mode=%s base_url=%s timeout=%ds", c.AuthMode, c.API.BaseURL, c.API.Timeout)
}
