package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"AuditLumaDash/internal/api"
	"AuditLumaDash/internal/auditluma"
	"AuditLumaDash/internal/config"
	log "AuditLumaDash/internal/log"
	"AuditLumaDash/internal/mockbackend"
	"AuditLumaDash/internal/scan"
	"AuditLumaDash/internal/session"
	"AuditLumaDash/internal/sse"
	"AuditLumaDash/internal/storage"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
)

// Version 会在构建时通过 -ldflags "-X main.Version=xxx" 注入
var Version = "dev"

// sseNavigator 通过 SSE 通知前端会话失效并跳转登录页。
// 任何后端请求返回 401 都会触发，包括后台轮询。
type sseNavigator struct {
	service *sse.Service
}

func (n *sseNavigator) RedirectToLogin() {
	log.Warnf("收到 401 响应，已清除会话并通知前端跳转登录页")
	n.service.PublishSessionExpired()
}

func main() {
	// 命令行参数处理
	portFlag := flag.String("port", "", "HTTP 服务端口 (优先级高于环境变量 PORT)，默认 3000")
	configFlag := flag.String("config", "config.yaml", "应用配置文件路径 (YAML)")
	dbFlag := flag.String("db", "public/sqlite.db", "本地数据库文件路径")
	mockFlag := flag.Bool("mock-backend", false, "启动内置模拟扫描后端 (监听 :8000)")
	flag.Parse()

	// 打开数据库连接
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_fk=1", *dbFlag)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.Errorf("连接数据库失败: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	// 仅使用少量连接串行化写，避免锁冲突
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	// 本地键值存储（会话快照 / 令牌 / 网站配置）
	local, err := storage.NewStore(db)
	if err != nil {
		log.Errorf("初始化本地存储失败: %v", err)
		os.Exit(1)
	}

	// 配置解析器：每次请求重新读取配置文件，变更无需重启
	resolver := config.NewFileResolver(*configFlag)
	log.Infof("当前配置: %s", resolver.Load(context.Background()))

	// SSE 推送服务
	sseService := sse.NewService()

	// 后端客户端：配置、令牌与 401 跳转全部通过依赖注入
	tokens := &session.PersistedTokens{Local: local}
	client := auditluma.NewClient(resolver, tokens, &sseNavigator{service: sseService}, auditluma.Options{
		MaxRPS:             10,
		InsecureSkipVerify: true,
	})

	// 会话存储：启动时从本地存储恢复
	sessions := session.NewStore(client, resolver, local)

	// 扫描追踪器：SSE 推送 + 项目统计回写
	publisher := &api.ScanPublisher{SSE: sseService}
	tracker := scan.NewTracker(client, publisher, scan.DefaultInterval)

	// 创建API路由器 (仅处理 /api/*)
	apiRouter, err := api.NewRouter(db, local, resolver, client, sessions, tracker, sseService, Version)
	if err != nil {
		log.Errorf("初始化路由失败: %v", err)
		os.Exit(1)
	}
	publisher.Projects = apiRouter.Projects()

	// 顶层路由器，用于同时处理 API 和静态资源
	rootRouter := mux.NewRouter()
	rootRouter.StrictSlash(true)

	// 注册 API 路由
	rootRouter.PathPrefix("/api/").Handler(apiRouter)

	// 静态文件服务
	fs := http.FileServer(http.Dir("dist"))
	rootRouter.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			apiRouter.ServeHTTP(w, r)
			return
		}

		// 检查文件是否存在
		if _, err := http.Dir("dist").Open(r.URL.Path); err != nil {
			// 如果文件不存在，返回 index.html 以支持 SPA
			http.ServeFile(w, r, "dist/index.html")
			return
		}

		fs.ServeHTTP(w, r)
	})

	// 读取端口：命令行 > 环境变量 > 默认值
	port := "3000"
	if env := os.Getenv("PORT"); env != "" {
		port = env
	}
	if *portFlag != "" {
		port = *portFlag
	}
	addr := fmt.Sprintf(":%s", port)

	// 按需启动内置模拟后端
	var mockServer *http.Server
	if *mockFlag {
		mockServer = &http.Server{
			Addr:    ":8000",
			Handler: mockbackend.NewServer(mockbackend.Options{Version: Version}),
		}
		go func() {
			log.Infof("模拟扫描后端启动在 http://localhost:8000")
			if err := mockServer.ListenAndServe(); err != http.ErrServerClosed {
				log.Errorf("模拟后端错误: %v", err)
			}
		}()
	}

	// 创建HTTP服务器
	server := &http.Server{
		Addr:    addr,
		Handler: rootRouter,
	}

	// 启动HTTP服务器
	go func() {
		log.Infof("AuditLumaDash[%s]启动在 http://localhost:%s", Version, port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("HTTP服务器错误: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 关闭服务
	log.Infof("正在关闭服务器...")

	// 停止扫描轮询并断开 SSE 客户端
	tracker.Close()
	sseService.Close()

	// 优雅关闭HTTP服务器
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if mockServer != nil {
		if err := mockServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("模拟后端关闭错误: %v", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("服务器关闭错误: %v", err)
	}

	log.Infof("服务器已关闭")
}
