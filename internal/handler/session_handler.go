// Package handler 提供本地控制 API 的请求处理器
// 本文件处理连接与登录态相关的请求
package handler

import (
	"github.com/gin-gonic/gin"

	"mail_assistant_client/internal/dto/request"
	"mail_assistant_client/internal/service"
)

// SessionHandler 连接请求处理器
// 通过构造函数注入 SessionService，遵循依赖倒置原则
type SessionHandler struct {
	sessionSvc service.SessionService
}

// NewSessionHandler 创建处理器实例
func NewSessionHandler(sessionSvc service.SessionService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc}
}

// Status 当前连接状态
// GET /status
// 响应: respond.StatusRespond
func (h *SessionHandler) Status(c *gin.Context) {
	HandleSuccess(c, h.sessionSvc.Status(c.Request.Context()))
}

// Connect 手动建连
// POST /session/connect
func (h *SessionHandler) Connect(c *gin.Context) {
	if err := h.sessionSvc.Connect(c.Request.Context()); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, h.sessionSvc.Status(c.Request.Context()))
}

// Disconnect 手动断开
// POST /session/disconnect
func (h *SessionHandler) Disconnect(c *gin.Context) {
	h.sessionSvc.Disconnect(c.Request.Context())
	HandleSuccess(c, nil)
}

// Login 保存 token 并建连
// POST /session/login
// 请求体: request.LoginRequest
// 响应: model.UserProfile
func (h *SessionHandler) Login(c *gin.Context) {
	var req request.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	user, err := h.sessionSvc.Login(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, user)
}

// Logout 断开并清除本地数据
// POST /session/logout
func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.sessionSvc.Logout(c.Request.Context()); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
