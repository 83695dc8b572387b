package api

import (
	"encoding/json"
	"net/http"

	"AuditLumaDash/internal/session"
)

// AuthHandler 认证相关的处理器
type AuthHandler struct {
	sessions *session.Store
}

// NewAuthHandler 创建认证处理器实例
func NewAuthHandler(sessions *session.Store) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// HandleLogin 处理登录请求。登录错误原样返回给调用方，
// 由表单就近展示错误信息。
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req session.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求数据")
		return
	}

	// 验证用户名和密码不为空
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusOK, session.LoginResponse{
			Success: false,
			Error:   "用户名和密码不能为空",
		})
		return
	}

	if err := h.sessions.Login(r.Context(), req.Username, req.Password); err != nil {
		writeJSON(w, http.StatusUnauthorized, session.LoginResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	state := h.sessions.State()
	writeJSON(w, http.StatusOK, session.LoginResponse{
		Success: true,
		Message: "登录成功",
		Token:   state.Token,
		User:    state.User,
	})
}

// HandleLogout 处理登出请求
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "登出成功",
	})
}

// HandleGetMe 返回当前登录用户。校验失败不抛错，
// 仅以 401 告知前端当前未登录。
func (h *AuthHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	h.sessions.CheckAuthStatus(r.Context())

	state := h.sessions.State()
	if !state.IsAuthenticated {
		writeError(w, http.StatusUnauthorized, "未登录")
		return
	}
	writeJSON(w, http.StatusOK, state.User)
}

// HandleGetSession 返回完整会话快照（含加载与错误状态）
func (h *AuthHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.State())
}
