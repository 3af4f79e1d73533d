package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantlab-kr/kscreener/internal/api"
	"github.com/quantlab-kr/kscreener/internal/api/handlers"
	"github.com/quantlab-kr/kscreener/internal/storage"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "읽기 전용 API 서버 시작",
	Long: `스냅샷 조회용 REST API 서버를 시작합니다.

Endpoints:
  GET /api/v1/health          - Health check
  GET /api/v1/snapshot        - 스냅샷 조회 (?asof=&limit=)
  GET /api/v1/snapshot/dates  - 스냅샷 보유 날짜 목록
  GET /api/v1/status          - 캐시/작업 상태

Example:
  go run ./cmd/kscreener api
  go run ./cmd/kscreener api --port 8087`,
	RunE: runAPIServer,
}

var (
	// API flags
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: API_PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== KScreener API Server ===")

	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if apiPort != "" {
		cfg.API.Port = apiPort
	}
	if !cfg.API.Enabled {
		return fmt.Errorf("API is disabled (set API_ENABLED=true)")
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Open the cache
	store, err := storage.Open(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	// 4. Create handlers and router
	snapshotHandler := handlers.NewSnapshotHandler(store, log)
	statusHandler := handlers.NewStatusHandler(store, log)
	router := api.NewRouter(snapshotHandler, statusHandler, log)

	// 5. Create server
	server := api.New(cfg, log, router)

	// 6. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.API.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET /api/v1/health")
	fmt.Println("  GET /api/v1/snapshot")
	fmt.Println("  GET /api/v1/snapshot/dates")
	fmt.Println("  GET /api/v1/status")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
