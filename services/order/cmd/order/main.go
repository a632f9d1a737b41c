package main

import (
	"context"
	"log"

	"github.com/shestoi/ordersaga/services/order/internal/app"
	"github.com/shestoi/ordersaga/services/order/internal/config"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Build собирает граф зависимостей и инициализирует все компоненты
	application, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build app: %v", err)
	}

	// Run блокируется до graceful shutdown
	if err := application.Run(ctx); err != nil {
		log.Fatalf("Service error: %v", err)
	}
}
