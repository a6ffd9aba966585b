package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/NotifyCast/internal/api"
	"github.com/LJTian/NotifyCast/internal/app"
	"github.com/LJTian/NotifyCast/internal/config"
	"github.com/LJTian/NotifyCast/internal/scheduler"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	a, err := app.Build(cfg, os.Stdout)
	if err != nil {
		log.Fatalf("init pipeline failed: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 定期清理过期的正文缓存
	a.Cache.StartJanitor(ctx, 10*time.Minute)

	s, err := scheduler.New(cfg.CronSpec, a.Orchestrator.RunScheduled, cfg.StartupRunDelay)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	s.Start()
	defer s.Stop()
	log.Printf("scheduler started, next run at %s", s.Next().Format(time.RFC3339))

	// API
	r := gin.Default()
	// 若配置了访问密码，则启用 Basic Auth 保护（/health 与 webhook 免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	opts := api.Options{
		Formatter:     a.Formatter,
		WebhookSecret: cfg.WebhookSecret,
	}
	if a.Store != nil {
		opts.Posts = a.Store
	}
	if a.Telegram != nil {
		opts.Replier = a.Telegram
	}
	api.NewServer(a.Orchestrator, opts).RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("starting api server at %s ...", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server exit: %v", err)
	}
	log.Println("server stopped")
}
