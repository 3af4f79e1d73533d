package main

import (
	"os"

	"github.com/quantlab-kr/kscreener/cmd/kscreener/commands"
)

// main is the entry point for the KScreener CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/kscreener [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
