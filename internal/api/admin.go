package api

import (
	"net/http"

	"AuditLumaDash/internal/session"
)

// adminUser 管理页展示的用户条目
type adminUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// AdminHandler 管理后台相关的处理器。
// 用户管理由外部后端负责，这里提供演示数据，仅管理员可见。
type AdminHandler struct {
	sessions *session.Store
}

// NewAdminHandler 创建管理处理器实例
func NewAdminHandler(sessions *session.Store) *AdminHandler {
	return &AdminHandler{sessions: sessions}
}

// HandleGetUsers 返回用户列表
func (h *AdminHandler) HandleGetUsers(w http.ResponseWriter, r *http.Request) {
	state := h.sessions.State()
	if !state.IsAuthenticated {
		writeError(w, http.StatusUnauthorized, "未登录")
		return
	}
	if state.User == nil || state.User.Role != "admin" {
		writeError(w, http.StatusForbidden, "仅管理员可访问")
		return
	}

	users := []adminUser{
		{ID: "user-001", Username: "admin", Email: "admin@example.com", Role: "admin", CreatedAt: "2025-05-01 10:00:00"},
		{ID: "user-002", Username: "user1", Email: "user1@example.com", Role: "user", CreatedAt: "2025-05-15 14:30:00"},
		{ID: "user-003", Username: "user2", Email: "user2@example.com", Role: "user", CreatedAt: "2025-05-20 09:45:00"},
	}
	writeJSON(w, http.StatusOK, users)
}
