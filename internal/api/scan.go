package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"AuditLumaDash/internal/auditluma"
	log "AuditLumaDash/internal/log"
	"AuditLumaDash/internal/project"
	"AuditLumaDash/internal/scan"
	"AuditLumaDash/internal/sse"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ScanPublisher 扫描状态更新的组合出口：推送 SSE，
// 扫描完成时把统计结果落到项目表
type ScanPublisher struct {
	SSE      *sse.Service
	Projects *project.Service
}

// PublishScan 分发一次状态更新
func (p *ScanPublisher) PublishScan(status *scan.Status) {
	if p.SSE != nil {
		p.SSE.PublishScan(status)
	}
	if status.Status == scan.StateCompleted && p.Projects != nil {
		if err := p.Projects.RecordScan(status.ProjectID, status.FindingsCount.Total()); err != nil {
			log.Warnf("更新项目扫描统计失败: %v", err)
		}
	}
}

// ScanHandler 扫描相关的处理器
type ScanHandler struct {
	tracker    *scan.Tracker
	projects   *project.Service
	client     *auditluma.Client
	sseService *sse.Service
}

// NewScanHandler 创建扫描处理器实例
func NewScanHandler(tracker *scan.Tracker, projects *project.Service, client *auditluma.Client, sseService *sse.Service) *ScanHandler {
	return &ScanHandler{
		tracker:    tracker,
		projects:   projects,
		client:     client,
		sseService: sseService,
	}
}

// HandleStartScan 为项目启动一次扫描并开始服务端轮询
func (h *ScanHandler) HandleStartScan(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]

	p, err := h.projects.Get(projectID)
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			writeError(w, http.StatusNotFound, "项目不存在")
			return
		}
		writeError(w, http.StatusInternalServerError, "查询项目失败")
		return
	}

	// 请求体可选，缺省使用项目配置的扫描类型
	var req struct {
		ScanType []string `json:"scan_type"`
	}
	if r.Body != nil {
		// 解析失败按空请求处理
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	scanTypes := req.ScanType
	if len(scanTypes) == 0 {
		scanTypes = p.ScanType
	}

	status, err := h.tracker.Start(r.Context(), projectID, scanTypes)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("启动扫描失败: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleScanStatus 返回项目最近一次扫描的状态
func (h *ScanHandler) HandleScanStatus(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]

	status, ok := h.tracker.Status(projectID)
	if !ok {
		writeError(w, http.StatusNotFound, "该项目暂无扫描记录")
		return
	}

	resp := map[string]interface{}{"status": status}
	if lastErr := h.tracker.LastError(projectID); lastErr != "" {
		resp["poll_error"] = lastErr
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleScanSummary 透传后端扫描摘要
func (h *ScanHandler) HandleScanSummary(w http.ResponseWriter, r *http.Request) {
	scanID := mux.Vars(r)["scanId"]
	summary, err := h.client.ScanSummary(r.Context(), scanID)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleVulnerabilities 透传漏洞列表，保留查询参数
func (h *ScanHandler) HandleVulnerabilities(w http.ResponseWriter, r *http.Request) {
	scanID := mux.Vars(r)["scanId"]
	vulns, err := h.client.Vulnerabilities(r.Context(), scanID, r.URL.Query())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	if vulns == nil {
		vulns = []auditluma.Vulnerability{}
	}
	writeJSON(w, http.StatusOK, vulns)
}

// HandleScanSSE 订阅指定扫描的进度推送
func (h *ScanHandler) HandleScanSSE(w http.ResponseWriter, r *http.Request) {
	scanID := mux.Vars(r)["scanId"]
	if scanID == "" {
		writeError(w, http.StatusBadRequest, "缺少 scanId")
		return
	}

	// 设置SSE响应头
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientID := uuid.New().String()

	// 发送连接成功消息
	fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected","message":"连接成功"}`)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	log.Infow("前端订阅扫描进度", log.Fields{"scanId": scanID, "clientId": clientID, "remote": r.RemoteAddr})

	h.sseService.AddClient(clientID, w)
	h.sseService.SubscribeToScan(clientID, scanID)
	defer func() {
		h.sseService.UnsubscribeFromScan(clientID, scanID)
		h.sseService.RemoveClient(clientID)
	}()

	// 保持连接直到客户端断开
	<-r.Context().Done()

	log.Infow("扫描进度订阅关闭", log.Fields{"scanId": scanID, "clientId": clientID})
}

// writeBackendError 将后端错误按原状态码透传
func writeBackendError(w http.ResponseWriter, err error) {
	var apiErr *auditluma.APIError
	if errors.As(err, &apiErr) {
		writeError(w, apiErr.StatusCode, apiErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}
