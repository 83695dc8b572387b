package auditluma

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"AuditLumaDash/internal/config"
	log "AuditLumaDash/internal/log"
	"AuditLumaDash/internal/scan"

	"golang.org/x/time/rate"
)

// TokenStore 提供持久化令牌的读取与清除。
// 令牌由会话层写入，客户端在每次请求前读取，401 时清除。
type TokenStore interface {
	Token() string
	ClearToken()
}

// Navigator 封装 401 后强制跳转登录页的副作用。
// 任何接口返回 401 都会无条件触发，轮询等后台请求也不例外。
type Navigator interface {
	RedirectToLogin()
}

// Client 封装与 AuditLuma 后端 API 的交互。
// 每次请求前通过 Resolver 重新读取配置，覆盖 baseURL 与超时，
// 并在存在持久化令牌时附加 Authorization: Bearer 头。
// 调用方无需自行处理认证头与 401 跳转，均在此处集中完成。
// 示例：
//  client := auditluma.NewClient(resolver, tokens, nav, auditluma.Options{})
//  result, err := client.Login(ctx, "admin", "admin")
type Client struct {
	resolver   config.Resolver
	tokens     TokenStore
	navigator  Navigator
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Options 客户端可选配置
type Options struct {
	// HTTPClient 为空时使用默认客户端（支持自签名证书）
	HTTPClient *http.Client
	// MaxRPS 每秒最大请求数，0 表示不限流
	MaxRPS float64
	// InsecureSkipVerify 跳过 TLS 证书校验，以支持自建/自签名 SSL
	InsecureSkipVerify bool
}

// NewClient 新建后端客户端；resolver 与 tokens 必须提供，navigator 可为 nil
func NewClient(resolver config.Resolver, tokens TokenStore, navigator Navigator, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			if tr.TLSClientConfig == nil {
				tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
			} else {
				tr.TLSClientConfig.InsecureSkipVerify = true
			}
		}
		// 超时由每次请求的 context 控制，这里不设全局 Timeout
		httpClient = &http.Client{Transport: tr}
	}

	c := &Client{
		resolver:   resolver,
		tokens:     tokens,
		navigator:  navigator,
		httpClient: httpClient,
	}
	if opts.MaxRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), 1)
	}
	return c
}

// APIError 后端返回的非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Login 用户登录，返回令牌与用户信息
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	payload := map[string]string{"username": username, "password": password}
	var result LoginResult
	if err := c.doRequest(ctx, http.MethodPost, "/auth/login", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Me 获取当前登录用户信息，用于令牌校验
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.doRequest(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" && user.Username == "" {
		// 接口返回空结果视为令牌无效
		return nil, fmt.Errorf("用户信息为空")
	}
	return &user, nil
}

// StartScan 启动一次扫描，返回初始状态（queued / progress 0）
func (c *Client) StartScan(ctx context.Context, req scan.StartRequest) (*scan.Status, error) {
	var status scan.Status
	if err := c.doRequest(ctx, http.MethodPost, "/scan", req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ScanStatus 获取指定扫描的当前状态
func (c *Client) ScanStatus(ctx context.Context, scanID string) (*scan.Status, error) {
	var status scan.Status
	path := fmt.Sprintf("/scan/%s/status", scanID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ScanSummary 获取扫描结果摘要
func (c *Client) ScanSummary(ctx context.Context, scanID string) (*ScanSummary, error) {
	var summary ScanSummary
	path := fmt.Sprintf("/scan/%s/summary", scanID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Vulnerabilities 获取漏洞列表，filters 支持 severity / page 等查询参数
func (c *Client) Vulnerabilities(ctx context.Context, scanID string, filters url.Values) ([]Vulnerability, error) {
	path := fmt.Sprintf("/scan/%s/vulnerabilities", scanID)
	if len(filters) > 0 {
		path += "?" + filters.Encode()
	}
	var vulns []Vulnerability
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &vulns); err != nil {
		return nil, err
	}
	return vulns, nil
}

// Health 后端健康检查
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var info HealthInfo
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// doRequest 内部方法：读取配置、构建并发送 HTTP 请求，解析 JSON。
// 非 2xx 响应统一转为 APIError；401 额外清除令牌并触发跳转。
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, dest interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	// 每次请求前重新读取配置，配置变更无需重启即可生效
	cfg := c.resolver.Load(ctx)
	reqURL := strings.TrimRight(cfg.API.BaseURL, "/") + path

	reqCtx, cancel := context.WithTimeout(ctx, cfg.TimeoutDuration())
	defer cancel()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewBuffer(data)
	} else {
		buf = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(reqCtx, method, reqURL, buf)
	if err != nil {
		return err
	}
	if method != http.MethodGet && method != http.MethodDelete {
		req.Header.Set("Content-Type", "application/json")
	}
	// 存在持久化令牌时附加认证头
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(resp),
		}
		log.Errorf("API错误: %s", apiErr.Message)

		// 401 统一处理：清除会话并强制跳转登录页，不提供绕过入口
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.ClearToken()
			if c.navigator != nil {
				c.navigator.RedirectToLogin()
			}
		}
		return apiErr
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return err
		}
	}
	return nil
}

// extractErrorMessage 从响应体中提取可读的错误信息，
// 依次尝试 detail / error / message 字段，都没有时回退到状态文本
func extractErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(data) > 0 {
		var payload struct {
			Detail  string `json:"detail"`
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			switch {
			case payload.Detail != "":
				return payload.Detail
			case payload.Error != "":
				return payload.Error
			case payload.Message != "":
				return payload.Message
			}
		}
	}
	return fmt.Sprintf("请求失败: %s", resp.Status)
}
