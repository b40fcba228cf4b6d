package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"miniplaza/server"
)

// MiniPlaza 入口：启动 HTTP + WebSocket 名册中继，并初始化广场管理器
func main() {
	var addr string
	var logFile string
	var debug bool
	flag.StringVar(&addr, "addr", ":8080", "server listen address, e.g. :8080")
	flag.StringVar(&logFile, "log", "plaza.log", "log file path")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()
	// 使用第三方 zap 日志库写入文件（带滚动）
	if err := server.InitLogger(logFile, debug); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	pm := server.GetPlazaManager()
	// 先预创建一个默认广场，便于快速试跑
	_ = pm.GetOrCreatePlaza("lobby")

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWS)
	// 管理与监控接口
	mux.HandleFunc("/admin/config", server.HandleAdminConfig)
	mux.HandleFunc("/metrics", server.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		server.Log.Infof("MiniPlaza listening on %s; ws endpoint ws://localhost%v/ws", addr, addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")
}
