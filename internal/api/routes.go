package api

import (
	"database/sql"
	"net/http"
	"strings"

	"AuditLumaDash/internal/auditluma"
	"AuditLumaDash/internal/config"
	"AuditLumaDash/internal/project"
	"AuditLumaDash/internal/scan"
	"AuditLumaDash/internal/session"
	"AuditLumaDash/internal/siteconfig"
	"AuditLumaDash/internal/sse"
	"AuditLumaDash/internal/storage"

	"github.com/gorilla/mux"
)

// Router API 路由器
type Router struct {
	router            *mux.Router
	authHandler       *AuthHandler
	configHandler     *ConfigHandler
	siteConfigHandler *SiteConfigHandler
	projectHandler    *ProjectHandler
	scanHandler       *ScanHandler
	adminHandler      *AdminHandler
	version           string
	client            *auditluma.Client
}

// NewRouter 创建路由器实例。项目与网站配置服务在此内部创建，
// 会话、后端客户端与扫描追踪器由外部传入以便共享实例。
func NewRouter(db *sql.DB, local *storage.Store, resolver config.Resolver,
	client *auditluma.Client, sessions *session.Store, tracker *scan.Tracker,
	sseService *sse.Service, version string) (*Router, error) {

	// 创建路由器（忽略末尾斜杠差异）
	router := mux.NewRouter()
	router.StrictSlash(true)

	projectService, err := project.NewService(db)
	if err != nil {
		return nil, err
	}
	siteConfigService := siteconfig.NewService(local)

	r := &Router{
		router:            router,
		authHandler:       NewAuthHandler(sessions),
		configHandler:     NewConfigHandler(resolver),
		siteConfigHandler: NewSiteConfigHandler(siteConfigService),
		projectHandler:    NewProjectHandler(projectService),
		scanHandler:       NewScanHandler(tracker, projectService, client, sseService),
		adminHandler:      NewAdminHandler(sessions),
		version:           version,
		client:            client,
	}

	// 注册路由
	r.registerRoutes()

	// 为所有路由添加 CORS 处理
	r.router.Use(corsMiddleware)

	return r, nil
}

// Projects 返回内部创建的项目服务，供外部（扫描统计回写）复用
func (r *Router) Projects() *project.Service {
	return r.scanHandler.projects
}

// ServeHTTP 实现 http.Handler 接口
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// registerRoutes 注册所有 API 路由
func (r *Router) registerRoutes() {
	// 应用配置与网站配置
	r.router.HandleFunc("/api/config", r.configHandler.HandleGetConfig).Methods("GET")
	r.router.HandleFunc("/api/site-config", r.siteConfigHandler.HandleGetSiteConfig).Methods("GET")
	r.router.HandleFunc("/api/site-config", r.siteConfigHandler.HandleUpdateSiteConfig).Methods("POST")

	// 认证相关路由
	r.router.HandleFunc("/api/auth/login", r.authHandler.HandleLogin).Methods("POST")
	r.router.HandleFunc("/api/auth/logout", r.authHandler.HandleLogout).Methods("POST")
	r.router.HandleFunc("/api/auth/me", r.authHandler.HandleGetMe).Methods("GET")
	r.router.HandleFunc("/api/auth/session", r.authHandler.HandleGetSession).Methods("GET")

	// 项目相关路由
	r.router.HandleFunc("/api/projects", r.projectHandler.HandleGetProjects).Methods("GET")
	r.router.HandleFunc("/api/projects", r.projectHandler.HandleCreateProject).Methods("POST")
	r.router.HandleFunc("/api/projects/{id}", r.projectHandler.HandleGetProject).Methods("GET")
	r.router.HandleFunc("/api/projects/{id}", r.projectHandler.HandleDeleteProject).Methods("DELETE")

	// 扫描相关路由
	r.router.HandleFunc("/api/projects/{id}/scan", r.scanHandler.HandleStartScan).Methods("POST")
	r.router.HandleFunc("/api/projects/{id}/scan/status", r.scanHandler.HandleScanStatus).Methods("GET")
	r.router.HandleFunc("/api/scan/{scanId}/summary", r.scanHandler.HandleScanSummary).Methods("GET")
	r.router.HandleFunc("/api/scan/{scanId}/vulnerabilities", r.scanHandler.HandleVulnerabilities).Methods("GET")

	// SSE 相关路由
	r.router.HandleFunc("/api/sse/scan/{scanId}", r.scanHandler.HandleScanSSE).Methods("GET")

	// 管理后台
	r.router.HandleFunc("/api/admin/users", r.adminHandler.HandleGetUsers).Methods("GET")

	// 健康检查：本地服务与后端各一个
	r.router.HandleFunc("/api/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": r.version,
		})
	}).Methods("GET")
	r.router.HandleFunc("/api/backend/health", func(w http.ResponseWriter, req *http.Request) {
		info, err := r.client.Health(req.Context())
		if err != nil {
			writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}).Methods("GET")
}

// corsMiddleware 允许跨域请求（开发阶段前端独立端口调试）
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// 如果带 Origin 头，则回显；否则允许所有
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		w.Header().Set("Access-Control-Allow-Credentials", "true")
		// 回显浏览器预检要求的 Headers，如果没有则给常用默认值
		reqHeaders := r.Header.Get("Access-Control-Request-Headers")
		if reqHeaders == "" {
			reqHeaders = "Content-Type, Authorization"
		}
		w.Header().Set("Access-Control-Allow-Headers", reqHeaders)

		// 同理回显预检方法，或允许常见方法
		reqMethod := r.Header.Get("Access-Control-Request-Method")
		if reqMethod == "" {
			reqMethod = "GET, POST, PUT, PATCH, DELETE"
		}
		w.Header().Set("Access-Control-Allow-Methods", reqMethod)

		// 预检结果缓存 12 小时，减少重复 OPTIONS
		w.Header().Set("Access-Control-Max-Age", "43200")

		// 预检请求直接返回
		if strings.ToUpper(r.Method) == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
