package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"AuditLumaDash/internal/project"

	"github.com/gorilla/mux"
)

// ProjectHandler 项目相关的处理器
type ProjectHandler struct {
	service *project.Service
}

// NewProjectHandler 创建项目处理器实例
func NewProjectHandler(service *project.Service) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// HandleGetProjects 返回项目列表
func (h *ProjectHandler) HandleGetProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "查询项目列表失败")
		return
	}
	if projects == nil {
		projects = []project.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// HandleCreateProject 创建项目
func (h *ProjectHandler) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req project.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求数据")
		return
	}

	p, err := h.service.Create(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "项目创建成功",
		"data":    p,
	})
}

// HandleGetProject 返回项目详情
func (h *ProjectHandler) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := h.service.Get(id)
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			writeError(w, http.StatusNotFound, "项目不存在")
			return
		}
		writeError(w, http.StatusInternalServerError, "查询项目失败")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleDeleteProject 删除项目
func (h *ProjectHandler) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.Delete(id); err != nil {
		if errors.Is(err, project.ErrNotFound) {
			writeError(w, http.StatusNotFound, "项目不存在")
			return
		}
		writeError(w, http.StatusInternalServerError, "删除项目失败")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "项目已删除",
	})
}
