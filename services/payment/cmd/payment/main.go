package main

import (
	"context"
	"log"

	"github.com/shestoi/ordersaga/services/payment/internal/app"
	"github.com/shestoi/ordersaga/services/payment/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	application, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build app: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Payment coordinator failed: %v", err)
	}
}
