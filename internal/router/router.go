package router

import (
	"net/http"

	"github.com/contentgate/internal/handler"
	"github.com/contentgate/internal/logging"
	"github.com/contentgate/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const sessionName = "contentgate_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string, logger logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if logger != nil {
		r.Use(logging.Middleware(logger))
	}
	r.Use(metrics.Middleware())

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	r.GET("/metrics", metrics.Handler())

	// 访客路由
	content := r.Group("/content/:id")
	{
		content.GET("", api.ShowContent)
		content.POST("/email", api.SubmitEmail)
		content.POST("/cancel", api.CancelAttempt)
		content.GET("/attachments/:attachmentId", api.DownloadAttachment)
	}
	r.GET("/auth/google", api.StartGoogleAuth)
	r.GET("/auth/callback", api.OAuthCallback)

	// 后台管理路由
	admin := r.Group("/admin")
	{
		admin.POST("/login", api.Login)
		admin.POST("/logout", api.Logout)

		// 需要认证的后台 API
		auth := admin.Group("/api")
		auth.Use(handler.AuthRequired())
		{
			auth.GET("/dashboard", api.ShowDashboard)

			auth.GET("/contents", api.ListContents)
			auth.POST("/contents", api.CreateContent)
			auth.GET("/contents/:id", api.GetContent)
			auth.PUT("/contents/:id", api.UpdateContent)
			auth.DELETE("/contents/:id", api.DeleteContent)
			auth.POST("/contents/:id/attachments", api.UploadAttachment)
			auth.DELETE("/contents/:id/attachments/:attachmentId", api.DeleteAttachment)

			auth.GET("/subscriptions", api.ListSubscriptions)

			auth.GET("/channel-policy", api.GetChannelPolicy)
			auth.PUT("/channel-policy", api.UpdateChannelPolicy)
			auth.POST("/channel-policy/resolve", api.ResolveChannel)

			auth.PUT("/credential", api.UpdateCredential)
		}
	}

	return r
}
