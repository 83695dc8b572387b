package api

import (
	"encoding/json"
	"io"
	"net/http"

	"AuditLumaDash/internal/siteconfig"
)

// SiteConfigHandler 网站配置处理器
type SiteConfigHandler struct {
	service *siteconfig.Service
}

// NewSiteConfigHandler 创建网站配置处理器实例
func NewSiteConfigHandler(service *siteconfig.Service) *SiteConfigHandler {
	return &SiteConfigHandler{service: service}
}

// HandleGetSiteConfig 返回当前网站配置
func (h *SiteConfigHandler) HandleGetSiteConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Get())
}

// HandleUpdateSiteConfig 部分更新网站配置：只合并请求中出现的字段
func (h *SiteConfigHandler) HandleUpdateSiteConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		writeError(w, http.StatusBadRequest, "读取请求失败")
		return
	}

	cfg, err := h.service.Update(json.RawMessage(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "网站配置已更新",
		"data":    cfg,
	})
}
