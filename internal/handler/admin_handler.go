package handler

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const sessionAdminEmail = "admin_email"

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type credentialRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 校验管理员凭据并写入会话
func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req, "email and password are required") {
		return
	}

	email, err := a.admins.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(c, err, "login failed")
		return
	}

	session := sessions.Default(c)
	session.Set(sessionAdminEmail, email)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged in", "email": email})
}

// Logout 清除管理员会话
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete(sessionAdminEmail)
	_ = session.Save()
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// ShowDashboard 返回后台概览
func (a *API) ShowDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := a.admins.Stats(ctx)
	if err != nil {
		respondServiceError(c, err, "failed to load dashboard")
		return
	}
	policy, err := a.policies.Get(ctx)
	if err != nil {
		respondServiceError(c, err, "failed to load channel policy")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email":  sessions.Default(c).Get(sessionAdminEmail),
		"stats":  stats,
		"policy": policy,
	})
}

// UpdateCredential 替换存储的管理员账号
func (a *API) UpdateCredential(c *gin.Context) {
	var req credentialRequest
	if !bindJSON(c, &req, "email and password are required") {
		return
	}
	if err := a.admins.ChangeCredential(c.Request.Context(), req.Email, req.Password); err != nil {
		respondServiceError(c, err, "failed to update credential")
		return
	}

	session := sessions.Default(c)
	session.Set(sessionAdminEmail, strings.TrimSpace(req.Email))
	_ = session.Save()
	c.JSON(http.StatusOK, gin.H{"message": "credential updated"})
}

// AuthRequired 是一个简单的认证中间件
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if email, _ := session.Get(sessionAdminEmail).(string); email == "" {
			respondError(c, http.StatusUnauthorized, "login required")
			c.Abort()
			return
		}
		c.Next()
	}
}
