// 程序入口：读取配置、初始化持久化后端与高德适配器，并启动路线规划 HTTP 服务
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"route-api/internal/amap"
	"route-api/internal/api"
	"route-api/internal/logger"
	"route-api/internal/metrics"
	"route-api/internal/middleware"
	"route-api/internal/resolver"
	"route-api/internal/routeplan"
	"route-api/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")
	cfg := loadConfig()
	l.Debug("config_api_base", "base", cfg.APIBase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeKV, err := utils.OpenKVFromEnv(ctx)
	if err != nil {
		l.Error("kv_open_error", "err", err)
		os.Exit(1)
	}
	defer closeKV()

	// 未配置密钥时不注入适配器：行程全部落到兜底坐标，路线规划记为不可用
	var geo resolver.Geocoder
	var opt routeplan.RouteOptimizer
	if cfg.AMap.Key != "" {
		client := amap.New(cfg.AMap)
		geo, opt = client, client
		l.Info("amap_enabled", "qps", cfg.AMap.QPS)
	} else {
		l.Warn("amap_disabled", "reason", "AMAP_SERVER_KEY empty")
	}

	st := routeplan.New(ctx, geo, opt, store, cfg.Store)
	defer st.Close()

	mux := http.NewServeMux()
	mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, api.BuildRoutes(st)))
	mux.Handle(cfg.APIBase+"/metrics", metrics.Handler())
	// NOTE: 向前端暴露 API 基础路径，避免硬编码
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("window.__API_BASE__='" + cfg.APIBase + "'\n"))
	})
	if cfg.UIDir != "" {
		l.Debug("config_ui_dir", "dir", cfg.UIDir)
		mux.Handle("/", http.FileServer(http.Dir(cfg.UIDir)))
	}

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()
	l.Info("listening", "addr", cfg.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("listen_error", "err", err)
	}
	l.Info("shutdown")
}
