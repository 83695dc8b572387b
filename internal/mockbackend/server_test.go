package mockbackend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"AuditLumaDash/internal/auditluma"
	"AuditLumaDash/internal/scan"
)

// doJSON 向模拟后端发一次请求并解码响应
func doJSON(t *testing.T, s *Server, method, path, token, body string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("解析响应失败: %v, body=%s", err, rec.Body.String())
		}
	}
	return rec.Code
}

func login(t *testing.T, s *Server, username, password string) auditluma.LoginResult {
	t.Helper()
	var result auditluma.LoginResult
	code := doJSON(t, s, "POST", "/api/auth/login", "",
		`{"username":"`+username+`","password":"`+password+`"}`, &result)
	if code != http.StatusOK {
		t.Fatalf("登录失败: status=%d", code)
	}
	return result
}

func TestLoginSuccess(t *testing.T) {
	s := NewServer(Options{})

	result := login(t, s, "admin", "admin123")
	if result.Token == "" {
		t.Fatal("未返回令牌")
	}
	if result.User == nil || result.User.Username != "admin" || result.User.Role != "admin" {
		t.Errorf("用户信息错误: %+v", result.User)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	s := NewServer(Options{})

	var detail map[string]string
	code := doJSON(t, s, "POST", "/api/auth/login", "",
		`{"username":"admin","password":"wrong"}`, &detail)
	if code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
	if detail["detail"] != "用户名或密码错误" {
		t.Errorf("detail = %q", detail["detail"])
	}
}

func TestMeRequiresToken(t *testing.T) {
	s := NewServer(Options{})

	if code := doJSON(t, s, "GET", "/api/auth/me", "", "", nil); code != http.StatusUnauthorized {
		t.Errorf("无令牌 status = %d, want 401", code)
	}
	if code := doJSON(t, s, "GET", "/api/auth/me", "bogus", "", nil); code != http.StatusUnauthorized {
		t.Errorf("非法令牌 status = %d, want 401", code)
	}

	result := login(t, s, "user1", "123456")
	var user auditluma.User
	if code := doJSON(t, s, "GET", "/api/auth/me", result.Token, "", &user); code != http.StatusOK {
		t.Fatalf("有效令牌 status = %d", code)
	}
	if user.ID != "user-002" {
		t.Errorf("用户 = %+v", user)
	}
}

func TestRevokeToken(t *testing.T) {
	s := NewServer(Options{})
	result := login(t, s, "admin", "admin123")

	s.RevokeToken(result.Token)
	if code := doJSON(t, s, "GET", "/api/auth/me", result.Token, "", nil); code != http.StatusUnauthorized {
		t.Errorf("吊销后 status = %d, want 401", code)
	}
}

// 完整扫描生命周期：queued/running -> completed，摘要仅在完成后可用
func TestScanLifecycle(t *testing.T) {
	s := NewServer(Options{ScanDuration: 50 * time.Millisecond})

	var started scan.Status
	code := doJSON(t, s, "POST", "/api/scan", "", `{"project_id":"proj-001"}`, &started)
	if code != http.StatusOK {
		t.Fatalf("启动扫描 status = %d", code)
	}
	if started.ID == "" || started.Status.Terminal() {
		t.Fatalf("意外的初始状态: %+v", started)
	}
	if len(started.ScanType) != 2 {
		t.Errorf("默认扫描类型 = %v", started.ScanType)
	}

	// 完成前摘要不可用
	if code := doJSON(t, s, "GET", "/api/scan/"+started.ID+"/summary", "", "", nil); code != http.StatusBadRequest {
		t.Errorf("未完成的摘要 status = %d, want 400", code)
	}

	// 等到扫描完成
	deadline := time.Now().Add(2 * time.Second)
	var status scan.Status
	for {
		doJSON(t, s, "GET", "/api/scan/"+started.ID+"/status", "", "", &status)
		if status.Status == scan.StateCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("扫描未完成: %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status.Progress != 100 || status.FindingsCount == nil || status.CompletedAt == nil {
		t.Fatalf("完成状态不完整: %+v", status)
	}
	if got := status.FindingsCount.Total(); got != 33 {
		t.Errorf("漏洞总数 = %d, want 33", got)
	}

	var summary auditluma.ScanSummary
	if code := doJSON(t, s, "GET", "/api/scan/"+started.ID+"/summary", "", "", &summary); code != http.StatusOK {
		t.Fatalf("摘要 status = %d", code)
	}
	if summary.ScanID != started.ID || summary.BySeverity["critical"] != 1 {
		t.Errorf("摘要 = %+v", summary)
	}
}

func TestScanNotFound(t *testing.T) {
	s := NewServer(Options{})

	var detail map[string]string
	if code := doJSON(t, s, "GET", "/api/scan/no-such/status", "", "", &detail); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
	if detail["detail"] != "扫描不存在" {
		t.Errorf("detail = %q", detail["detail"])
	}
}

func TestFailScan(t *testing.T) {
	s := NewServer(Options{ScanDuration: time.Hour})

	var started scan.Status
	doJSON(t, s, "POST", "/api/scan", "", `{"project_id":"proj-001"}`, &started)
	s.FailScan(started.ID)

	var status scan.Status
	doJSON(t, s, "GET", "/api/scan/"+started.ID+"/status", "", "", &status)
	if status.Status != scan.StateFailed || status.ErrorMessage == "" {
		t.Errorf("失败状态 = %+v", status)
	}
}

func TestVulnerabilitiesFilter(t *testing.T) {
	s := NewServer(Options{})

	var started scan.Status
	doJSON(t, s, "POST", "/api/scan", "", `{"project_id":"proj-001"}`, &started)

	var all []auditluma.Vulnerability
	doJSON(t, s, "GET", "/api/scan/"+started.ID+"/vulnerabilities", "", "", &all)
	if len(all) != 3 {
		t.Fatalf("漏洞数 = %d, want 3", len(all))
	}

	var critical []auditluma.Vulnerability
	doJSON(t, s, "GET", "/api/scan/"+started.ID+"/vulnerabilities?severity=critical", "", "", &critical)
	if len(critical) != 1 || critical[0].Severity != "critical" {
		t.Errorf("过滤结果 = %+v", critical)
	}
}

func TestHealth(t *testing.T) {
	s := NewServer(Options{Version: "1.2.3"})

	var info auditluma.HealthInfo
	if code := doJSON(t, s, "GET", "/api/health", "", "", &info); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if info.Status != "ok" || info.Version != "1.2.3" {
		t.Errorf("健康信息 = %+v", info)
	}
}
