package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"goprofile/internal"
	"goprofile/internal/api"
	"goprofile/internal/config"
	"goprofile/internal/container"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := internal.ParseLogLevel(appConfig.Log.Level)
	if logLevel < internal.LogLevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := internal.NewLogger(logLevel)

	hub := api.NewProgressHub(logger)
	defer hub.Close()

	appContainer, err := container.New(appConfig, container.WithLogger(logger), container.WithProgressObserver(hub))
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}

	handler := api.NewAnalysisHandler(appContainer.Analysis, appContainer.SourceOptions, appConfig.Server, logger)
	server := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           api.NewRouter(handler, hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start pprof server for performance profiling
	if appConfig.Profiling.Enabled {
		go func() {
			log.Printf("Performance profiling server starting on :%s", appConfig.Profiling.Port)
			log.Printf("View profiles: go tool pprof -http=:8081 http://localhost:%s/debug/pprof/profile?seconds=30", appConfig.Profiling.Port)
			if err := http.ListenAndServe(":"+appConfig.Profiling.Port, api.NewAdminRouter(appConfig, hub)); err != nil {
				log.Printf("pprof server failed: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting goprofile server on port %s", appConfig.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}
