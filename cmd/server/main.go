package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"candidate-service/internal/app"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		log.Fatal("Failed to initialize application: ", err)
	}

	runErr := application.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Close(closeCtx); err != nil {
		log.Println("Shutdown finished with errors:", err)
	}

	if runErr != nil {
		log.Fatal("Server stopped: ", runErr)
	}
	log.Println("Server exited gracefully")
}
