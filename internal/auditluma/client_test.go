package auditluma

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"AuditLumaDash/internal/config"
)

// fakeTokens 内存令牌存储
type fakeTokens struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (f *fakeTokens) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) ClearToken() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.cleared++
}

func (f *fakeTokens) clearedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

// fakeNavigator 记录跳转次数
type fakeNavigator struct {
	redirects int32
}

func (f *fakeNavigator) RedirectToLogin() {
	atomic.AddInt32(&f.redirects, 1)
}

// newTestClient 指向给定服务器的客户端
func newTestClient(t *testing.T, baseURL string, tokens TokenStore, nav Navigator) *Client {
	t.Helper()
	resolver := config.NewStaticResolver(&config.AppConfig{
		AuthMode: config.AuthModeLogin,
		API:      config.APIConfig{BaseURL: baseURL, Timeout: 5},
	})
	return NewClient(resolver, tokens, nav, Options{})
}

func TestBearerHeaderAttached(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"status":"ok","version":"test"}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "tok-abc"}
	c := newTestClient(t, srv.URL+"/api", tokens, nil)
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("Authorization = %q, want Bearer tok-abc", gotAuth)
	}
}

// 无持久化令牌时不应携带认证头
func TestNoTokenNoAuthHeader(t *testing.T) {
	var gotAuth string
	var hasHeader bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, hasHeader = r.Header["Authorization"]
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api", &fakeTokens{}, nil)
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if hasHeader {
		t.Errorf("不应携带 Authorization 头，实际 %q", gotAuth)
	}
}

// switchResolver 每次 Load 返回当前指向的地址，模拟配置热更新
type switchResolver struct {
	mu  sync.Mutex
	url string
}

func (s *switchResolver) Load(ctx context.Context) *config.AppConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &config.AppConfig{
		AuthMode: config.AuthModeLogin,
		API:      config.APIConfig{BaseURL: s.url, Timeout: 5},
	}
}

func (s *switchResolver) point(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

// 每次请求前重新读取配置：切换 base_url 后下一次请求立即生效
func TestConfigResolvedPerRequest(t *testing.T) {
	var hitsA, hitsB int32
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hitsA, 1)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hitsB, 1)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srvB.Close()

	resolver := &switchResolver{url: srvA.URL + "/api"}
	c := NewClient(resolver, &fakeTokens{}, nil, Options{})

	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health A: %v", err)
	}
	resolver.point(srvB.URL + "/api")
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health B: %v", err)
	}

	if hitsA != 1 || hitsB != 1 {
		t.Errorf("hitsA = %d, hitsB = %d, want 1/1", hitsA, hitsB)
	}
}

// 错误信息优先取响应体 detail 字段
func TestErrorMessageFromDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"参数不合法"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api", &fakeTokens{}, nil)
	_, err := c.ScanStatus(context.Background(), "scan-1")
	if err == nil {
		t.Fatal("期望错误")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err 类型 %T，期望 *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
	if apiErr.Message != "参数不合法" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

// 响应体没有已知字段时回退到状态文本
func TestErrorMessageFallbackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api", &fakeTokens{}, nil)
	_, err := c.Health(context.Background())
	if err == nil {
		t.Fatal("期望错误")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("意外的错误: %v", err)
	}
}

// 任何接口返回 401 都必须清除令牌并触发跳转，轮询类调用也不例外
func Test401ClearsTokenAndRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"令牌已过期"}`))
	}))
	defer srv.Close()

	calls := []struct {
		name string
		do   func(c *Client) error
	}{
		{"me", func(c *Client) error { _, err := c.Me(context.Background()); return err }},
		{"scanStatus", func(c *Client) error { _, err := c.ScanStatus(context.Background(), "s1"); return err }},
		{"health", func(c *Client) error { _, err := c.Health(context.Background()); return err }},
	}

	for _, tc := range calls {
		t.Run(tc.name, func(t *testing.T) {
			tokens := &fakeTokens{token: "tok"}
			nav := &fakeNavigator{}
			c := newTestClient(t, srv.URL+"/api", tokens, nav)

			err := tc.do(c)
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
				t.Fatalf("意外的错误: %v", err)
			}
			if tokens.Token() != "" || tokens.clearedCount() != 1 {
				t.Errorf("令牌未被清除")
			}
			if atomic.LoadInt32(&nav.redirects) != 1 {
				t.Errorf("未记录跳转登录页")
			}
		})
	}
}

func TestLoginParsesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			t.Errorf("意外的请求: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"token":"tok-1","user":{"id":"u1","username":"alice","role":"user"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api", &fakeTokens{}, nil)
	result, err := c.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.Token != "tok-1" || result.User == nil || result.User.Username != "alice" {
		t.Errorf("意外的结果: %+v", result)
	}
}

// /auth/me 返回空对象视为令牌无效
func TestMeEmptyUserIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api", &fakeTokens{token: "tok"}, nil)
	if _, err := c.Me(context.Background()); err == nil {
		t.Error("空用户应视为错误")
	}
}

func TestVulnerabilitiesQueryParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api", &fakeTokens{}, nil)
	_, err := c.Vulnerabilities(context.Background(), "scan-1", map[string][]string{"severity": {"high"}})
	if err != nil {
		t.Fatalf("Vulnerabilities: %v", err)
	}
	if gotQuery != "severity=high" {
		t.Errorf("query = %q", gotQuery)
	}
}
