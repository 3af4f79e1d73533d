package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlab-kr/kscreener/internal/external/krx"
	"github.com/quantlab-kr/kscreener/internal/external/naver"
	"github.com/quantlab-kr/kscreener/internal/pipeline"
	"github.com/quantlab-kr/kscreener/internal/storage"
	"github.com/quantlab-kr/kscreener/pkg/config"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

var (
	// Global flags
	dbPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kscreener",
	Short: "KScreener - 국내 전 종목 일일 분석 스냅샷 엔진",
	Long: `KScreener CLI

KOSPI/KOSDAQ 전 종목의 시세·시총·펀더멘털을 KRX 정보데이터시스템에서
수집하고 네이버 기업정보에서 유보율을 보충해, 종목당 한 줄의 분석
스냅샷을 재계산하는 배치 엔진.

Usage:
  go run ./cmd/kscreener [command]

Examples:
  go run ./cmd/kscreener run
  go run ./cmd/kscreener run --asof 2025-08-22
  go run ./cmd/kscreener snapshot
  go run ./cmd/kscreener reserve --rebuild-snapshot
  go run ./cmd/kscreener status
  go run ./cmd/kscreener scheduler start
  go run ./cmd/kscreener api`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite 파일 경로 (기본: DB_PATH 또는 data/kscreener.db)")
}

// loadConfig merges the global flags into the environment configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

// pipelineDeps bundles everything a collection command needs
type pipelineDeps struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *storage.Store
	pipeline *pipeline.Pipeline
}

func (d *pipelineDeps) Close() {
	d.store.Close()
}

// initPipeline wires config, store and the external clients into a pipeline
func initPipeline() (*pipelineDeps, error) {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Open the cache
	store, err := storage.Open(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// 4. Create external clients
	krxClient := krx.NewClient(cfg.KRX, log)
	naverClient := naver.NewClient(cfg.Naver, log)

	// 5. Create pipeline
	pl := pipeline.New(krxClient, naverClient, store, log)

	return &pipelineDeps{
		cfg:      cfg,
		log:      log,
		store:    store,
		pipeline: pl,
	}, nil
}
