package api

import (
	"net/http"

	"AuditLumaDash/internal/config"
)

// ConfigHandler 应用配置处理器
type ConfigHandler struct {
	resolver config.Resolver
}

// NewConfigHandler 创建配置处理器实例
func NewConfigHandler(resolver config.Resolver) *ConfigHandler {
	return &ConfigHandler{resolver: resolver}
}

// HandleGetConfig 下发应用配置。每次请求重新加载，
// 解析器内部保证失败时回退默认配置，因此永远返回 200。
func (h *ConfigHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.resolver.Load(r.Context()))
}
