package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"roofcrm/internal/app"
	"roofcrm/internal/config"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("[server] config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("[server] startup: %v", err)
	}

	err = a.Run(ctx)
	a.Close()
	if err != nil {
		log.Fatalf("[server] %v", err)
	}
	log.Println("[server] stopped")
}
