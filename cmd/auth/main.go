package main

import (
	"log"

	"github.com/aussiebroadwan/tokensmith/internal/auth/app"
	"github.com/aussiebroadwan/tokensmith/pkg/httpx"
)

func main() {
	if err := app.LoadEnvFile(".env"); err != nil {
		log.Fatalf("failed to load environment: %v", err)
	}
	httpx.LoadRateLimitsFromEnv()

	cfg := app.LoadConfig()

	application, err := app.New(cfg, nil)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
