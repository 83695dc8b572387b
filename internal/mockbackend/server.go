package mockbackend

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"AuditLumaDash/internal/auditluma"
	log "AuditLumaDash/internal/log"
	"AuditLumaDash/internal/scan"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// Server 模拟 AuditLuma 扫描后端，供本地开发与测试使用。
// 真实的漏洞扫描与修复建议引擎在外部服务中，这里只复刻其 HTTP 契约：
// 登录换取 Bearer 令牌、令牌校验、扫描生命周期与健康检查。
// 扫描进度按启动后的耗时线性推进，到 100 即完成并给出漏洞统计。
type Server struct {
	router  *mux.Router
	version string
	// scanDuration 一次扫描从 queued 到 completed 的总时长
	scanDuration time.Duration

	mu     sync.Mutex
	users  map[string]*userRecord
	tokens map[string]string
	scans  map[string]*scanRun
}

// userRecord 预置用户及其密码哈希
type userRecord struct {
	user         auditluma.User
	passwordHash string
}

// scanRun 一次扫描的运行记录
type scanRun struct {
	projectID string
	scanType  []string
	startedAt time.Time
	failed    bool
}

// Options 模拟后端可选配置
type Options struct {
	// Version 健康检查返回的版本号，默认 dev
	Version string
	// ScanDuration 扫描总时长，默认 30 秒；测试中可调小加速
	ScanDuration time.Duration
}

// NewServer 创建模拟后端并预置演示账户
func NewServer(opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.ScanDuration <= 0 {
		opts.ScanDuration = 30 * time.Second
	}

	s := &Server{
		router:       mux.NewRouter(),
		version:      opts.Version,
		scanDuration: opts.ScanDuration,
		users:        make(map[string]*userRecord),
		tokens:       make(map[string]string),
		scans:        make(map[string]*scanRun),
	}

	// 预置演示账户（与前端管理页样例数据保持一致）
	s.seedUser("admin", "admin123", auditluma.User{
		ID: "user-001", Username: "admin", Role: "admin", Email: "admin@example.com",
	})
	s.seedUser("user1", "123456", auditluma.User{
		ID: "user-002", Username: "user1", Role: "user", Email: "user1@example.com",
	})
	s.seedUser("user2", "123456", auditluma.User{
		ID: "user-003", Username: "user2", Role: "user", Email: "user2@example.com",
	})

	s.registerRoutes()
	return s
}

// seedUser 写入预置用户，密码以 bcrypt 哈希存储
func (s *Server) seedUser(username, password string, user auditluma.User) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Errorf("预置用户 %s 失败: %v", username, err)
		return
	}
	s.users[username] = &userRecord{user: user, passwordHash: string(hash)}
}

// ServeHTTP 实现 http.Handler 接口
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// registerRoutes 注册模拟后端路由（与真实后端同在 /api 前缀下）
func (s *Server) registerRoutes() {
	s.router.HandleFunc("/api/auth/login", s.handleLogin).Methods("POST")
	s.router.HandleFunc("/api/auth/me", s.handleMe).Methods("GET")
	s.router.HandleFunc("/api/scan", s.handleStartScan).Methods("POST")
	s.router.HandleFunc("/api/scan/{id}/status", s.handleScanStatus).Methods("GET")
	s.router.HandleFunc("/api/scan/{id}/summary", s.handleScanSummary).Methods("GET")
	s.router.HandleFunc("/api/scan/{id}/vulnerabilities", s.handleVulnerabilities).Methods("GET")
	s.router.HandleFunc("/api/health", s.handleHealth).Methods("GET")
}

// handleLogin 校验用户名密码，签发 uuid 令牌
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "无效的请求数据")
		return
	}

	s.mu.Lock()
	record, ok := s.users[req.Username]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword([]byte(record.passwordHash), []byte(req.Password)) != nil {
		writeDetail(w, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	token := uuid.New().String()
	s.mu.Lock()
	s.tokens[token] = req.Username
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, auditluma.LoginResult{
		Token: token,
		User:  &record.user,
	})
}

// handleMe 校验 Bearer 令牌并返回对应用户
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeDetail(w, http.StatusUnauthorized, "缺少认证令牌")
		return
	}

	s.mu.Lock()
	username, ok := s.tokens[token]
	var record *userRecord
	if ok {
		record = s.users[username]
	}
	s.mu.Unlock()

	if record == nil {
		writeDetail(w, http.StatusUnauthorized, "令牌无效或已过期")
		return
	}
	writeJSON(w, http.StatusOK, record.user)
}

// handleStartScan 创建扫描，初始状态 queued / progress 0
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req scan.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "无效的请求数据")
		return
	}
	if req.ProjectID == "" {
		writeDetail(w, http.StatusBadRequest, "缺少 project_id")
		return
	}
	if len(req.ScanType) == 0 {
		req.ScanType = []string{scan.ScanTypeCodeReview, scan.ScanTypeDependencyCheck}
	}

	run := &scanRun{
		projectID: req.ProjectID,
		scanType:  req.ScanType,
		startedAt: time.Now(),
	}
	scanID := "scan-" + uuid.New().String()

	s.mu.Lock()
	s.scans[scanID] = run
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, s.statusOf(scanID, run))
}

// handleScanStatus 返回扫描当前状态，进度随时间推进
func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	scanID := mux.Vars(r)["id"]

	s.mu.Lock()
	run, ok := s.scans[scanID]
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "扫描不存在")
		return
	}
	writeJSON(w, http.StatusOK, s.statusOf(scanID, run))
}

// statusOf 根据启动时间计算扫描状态
func (s *Server) statusOf(scanID string, run *scanRun) *scan.Status {
	status := &scan.Status{
		ID:        scanID,
		ProjectID: run.projectID,
		StartedAt: run.startedAt,
		ScanType:  run.scanType,
	}

	if run.failed {
		status.Status = scan.StateFailed
		status.ErrorMessage = "扫描引擎内部错误"
		return status
	}

	elapsed := time.Since(run.startedAt)
	progress := int(elapsed * 100 / s.scanDuration)
	switch {
	case progress <= 0:
		status.Status = scan.StateQueued
		status.Progress = 0
	case progress < 100:
		status.Status = scan.StateRunning
		status.Progress = progress
	default:
		completedAt := run.startedAt.Add(s.scanDuration)
		status.Status = scan.StateCompleted
		status.Progress = 100
		status.CompletedAt = &completedAt
		status.FindingsCount = &scan.FindingsCount{
			Critical: 1, High: 3, Medium: 6, Low: 9, Info: 14,
		}
	}
	return status
}

// handleScanSummary 返回扫描摘要，未完成时报 400
func (s *Server) handleScanSummary(w http.ResponseWriter, r *http.Request) {
	scanID := mux.Vars(r)["id"]

	s.mu.Lock()
	run, ok := s.scans[scanID]
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "扫描不存在")
		return
	}
	status := s.statusOf(scanID, run)
	if status.Status != scan.StateCompleted {
		writeDetail(w, http.StatusBadRequest, "扫描尚未完成")
		return
	}

	writeJSON(w, http.StatusOK, auditluma.ScanSummary{
		ScanID:     scanID,
		ProjectID:  run.projectID,
		TotalFiles: 128,
		TotalLines: 46210,
		BySeverity: map[string]int{
			"critical": status.FindingsCount.Critical,
			"high":     status.FindingsCount.High,
			"medium":   status.FindingsCount.Medium,
			"low":      status.FindingsCount.Low,
			"info":     status.FindingsCount.Info,
		},
		DurationSecs: int(s.scanDuration / time.Second),
	})
}

// handleVulnerabilities 返回样例漏洞列表，支持 severity 过滤
func (s *Server) handleVulnerabilities(w http.ResponseWriter, r *http.Request) {
	scanID := mux.Vars(r)["id"]

	s.mu.Lock()
	_, ok := s.scans[scanID]
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "扫描不存在")
		return
	}

	vulns := sampleVulnerabilities(scanID)
	if severity := r.URL.Query().Get("severity"); severity != "" {
		filtered := vulns[:0]
		for _, v := range vulns {
			if v.Severity == severity {
				filtered = append(filtered, v)
			}
		}
		vulns = filtered
	}
	writeJSON(w, http.StatusOK, vulns)
}

// sampleVulnerabilities 固定样例数据，与前端结果页展示字段对齐
func sampleVulnerabilities(scanID string) []auditluma.Vulnerability {
	return []auditluma.Vulnerability{
		{
			ID: "vuln-001", ScanID: scanID, Severity: "critical",
			Title: "SQL 注入", Description: "用户输入未经参数化直接拼接进查询语句",
			FilePath: "app/dao/user.py", LineNumber: 42,
			Suggestion: "使用参数化查询或 ORM 绑定变量",
		},
		{
			ID: "vuln-002", ScanID: scanID, Severity: "high",
			Title: "硬编码凭据", Description: "源码中包含明文数据库密码",
			FilePath: "config/settings.py", LineNumber: 17,
			Suggestion: "将凭据迁移至环境变量或密钥管理服务",
		},
		{
			ID: "vuln-003", ScanID: scanID, Severity: "medium",
			Title: "依赖组件存在已知漏洞", Description: "requests < 2.31.0 存在 CVE-2023-32681",
			FilePath: "requirements.txt", LineNumber: 3,
			Suggestion: "升级到不受影响的版本",
		},
	}
}

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auditluma.HealthInfo{
		Status:  "ok",
		Version: s.version,
	})
}

// FailScan 将指定扫描标记为失败（测试辅助）
func (s *Server) FailScan(scanID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.scans[scanID]; ok {
		run.failed = true
	}
}

// RevokeToken 吊销令牌，使后续请求返回 401（测试辅助）
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// bearerToken 从 Authorization 头提取 Bearer 令牌
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// writeJSON 输出 JSON 响应
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDetail 输出 FastAPI 风格的错误响应 {"detail": "..."}
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
