package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plantae-ai/plantae-server/internal/api"
	"github.com/plantae-ai/plantae-server/internal/config"
	"github.com/plantae-ai/plantae-server/internal/core"
	"github.com/plantae-ai/plantae-server/internal/store"
	"github.com/plantae-ai/plantae-server/internal/usage"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize durable per-user store
	userStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer userStore.Close()

	// Anonymous chats live in process memory; the usage ledger shares the
	// database so counters survive restarts.
	anonStore := store.NewMemoryStore()
	ledger, err := usage.NewLedger(userStore.DB())
	if err != nil {
		log.Fatalf("Failed to initialize usage ledger: %v", err)
	}

	// Initialize LLM service
	llmService := core.NewLLMService()
	defer llmService.Close()

	// Initialize core services
	chatService := core.NewChatService(anonStore, userStore, llmService)
	migrationService := core.NewMigrationService(anonStore, userStore, ledger)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, migrationService, ledger, userStore, llmService)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
