package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contentgate/internal/config"
	"github.com/contentgate/internal/db"
	"github.com/contentgate/internal/gateway"
	"github.com/contentgate/internal/handler"
	"github.com/contentgate/internal/logging"
	"github.com/contentgate/internal/router"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	store, err := db.Open(cfg.DatabasePath)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer store.Close()
	store.SetBootstrapCredential(cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)

	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		logger.Warn("GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET is empty, YouTube verification will fail")
	}
	youtube := gateway.NewYouTube(gateway.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		APIKey:       cfg.YouTubeAPIKey,
	}, logger)

	api := handler.NewAPI(store, youtube, handler.Options{
		SiteBaseURL:    cfg.SiteBaseURL,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AutoSubscribe:  cfg.AutoSubscribe,
		AttemptTTL:     cfg.AttemptTTL,
		AttemptCache:   cfg.AttemptCacheSize,
		Logger:         logger,
	})

	// 设置并运行 Gin 服务器
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.SetupRouter(api, cfg.SessionSecret, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("failed to run server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
}
