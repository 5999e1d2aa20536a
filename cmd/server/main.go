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

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/oauth2"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/auth"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/config"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/export"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/handler"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/history"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/report"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/token"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/webex"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(cfg.Logging.Level)
	appLogger.Info("Starting Webex Calling detailed report service")

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.OAuth.AuthorizationURL,
			TokenURL: cfg.OAuth.TokenURL,
		},
		RedirectURL: cfg.RedirectURL(),
		Scopes:      cfg.OAuth.Scopes,
	}

	// Token store: local file by default, Mongo when configured
	tokenStore, mongoClient, err := buildTokenStore(cfg)
	if err != nil {
		appLogger.Error("Failed to initialize token store", "error", err)
		log.Fatalf("Failed to initialize token store: %v", err)
	}
	if mongoClient != nil {
		defer func() {
			_ = mongoClient.Disconnect(context.Background())
		}()
	}

	manager := token.NewManager(tokenStore, oauthCfg, appLogger)

	// OAuth state store: in-memory by default, Redis when configured
	var stateStore auth.StateStore = auth.NewMemoryStateStore()
	if cfg.Storage.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			appLogger.Error("Failed to reach redis", "addr", cfg.Storage.RedisAddr, "error", err)
			log.Fatalf("Failed to reach redis: %v", err)
		}
		stateStore = auth.NewRedisStateStore(rdb)
		appLogger.Info("Using redis state store", "addr", cfg.Storage.RedisAddr)
	}

	flow := auth.NewFlow(oauthCfg, manager, stateStore,
		[]byte(cfg.OAuth.StateSecret), cfg.OAuth.StateTTL, cfg.OAuth.EnablePKCE, appLogger)

	// Webex API client and report pipeline
	client := webex.NewClient(cfg.Webex.BaseURL, manager,
		cfg.Webex.RequestTimeout, cfg.Webex.RetryCount, appLogger)
	poller := report.NewPoller(client, cfg.Report.PollInterval, cfg.Report.MaxWait, appLogger)
	exporter := export.NewCSVExporter(cfg.Storage.OutputDir)

	runHistory, err := history.New(cfg.Storage.HistoryDBPath)
	if err != nil {
		appLogger.Error("Failed to open run history", "error", err)
		log.Fatalf("Failed to open run history: %v", err)
	}
	defer runHistory.Close()

	request := report.Request{
		StartDate:    cfg.Report.StartDate,
		EndDate:      cfg.Report.EndDate,
		LookbackDays: cfg.Report.LookbackDays,
	}
	runner := report.NewRunner(poller, client, exporter, runHistory, request, appLogger)

	// HTTP surface
	metrics := handler.NewMetrics()
	h := handler.New(manager, flow, runner, runHistory, metrics, appLogger)
	router := mux.NewRouter()
	h.Routes(router)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Report.MaxWait + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		appLogger.Info("HTTP server starting", "address", addr, "public_url", cfg.Server.PublicURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server error", "error", err)
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server stopped gracefully")
}

// buildTokenStore selects the token store backend from configuration.
func buildTokenStore(cfg *config.Config) (token.Store, *mongo.Client, error) {
	if cfg.Storage.MongoURI == "" {
		store, err := token.NewFileStore(cfg.Storage.TokenFilePath)
		return store, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Storage.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return token.NewMongoStore(client.Database("webex_cdr"), "webex"), client, nil
}
