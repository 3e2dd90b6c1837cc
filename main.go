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

	"github.com/nyambika/marketplace/internal/api"
	"github.com/nyambika/marketplace/internal/auth"
	"github.com/nyambika/marketplace/internal/cache"
	"github.com/nyambika/marketplace/internal/db"
	"github.com/nyambika/marketplace/internal/events"
	"github.com/nyambika/marketplace/internal/metrics"
	"github.com/nyambika/marketplace/internal/services"
	"github.com/nyambika/marketplace/pkg/config"
)

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry metrics
	appMetrics, meterProvider, err := metrics.InitMetrics(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down meter provider: %v", err)
		}
	}()

	database, err := db.NewDB(cfg.GetDSN(), cfg.OTELServiceName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	schemaSQL, err := os.ReadFile("schema.sql")
	if err != nil {
		log.Printf("Warning: Could not read schema.sql: %v", err)
		log.Println("Assuming database schema already exists")
	} else if err := database.InitSchema(ctx, string(schemaSQL)); err != nil {
		log.Printf("Warning: Could not initialize schema: %v", err)
		log.Println("Assuming database schema already exists")
	}

	redisCache := cache.New(cfg.RedisAddr)
	if redisCache.Enabled() {
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("Warning: Redis at %s unreachable, continuing without cache: %v", cfg.RedisAddr, err)
			redisCache = cache.New("")
		}
	}
	defer redisCache.Close()

	hub := events.NewHub()
	defer hub.Close()
	var kafkaPub *events.KafkaPublisher
	if cfg.KafkaEnabled() {
		kafkaPub = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicOrders, 1024)
		kafkaPub.Start()
		defer kafkaPub.Close()
		log.Printf("Publishing events to Kafka topic %s", cfg.KafkaTopicOrders)
	}
	bus := events.NewBus(hub, kafkaPub, cfg.OTELServiceName)

	tokens := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	productService := services.NewProductService(database, appMetrics)
	go productService.RunCacheJanitor(ctx, time.Minute)

	svc := api.Services{
		Users:         services.NewUserService(database, appMetrics, redisCache, tokens),
		Products:      productService,
		Cart:          services.NewCartService(database, appMetrics),
		Orders:        services.NewOrderService(database, appMetrics, redisCache, bus),
		Companies:     services.NewCompanyService(database, appMetrics),
		Wallets:       services.NewWalletService(database, appMetrics),
		Subscriptions: services.NewSubscriptionService(database, appMetrics, redisCache, bus),
	}

	app := api.NewApp(cfg, database, redisCache, appMetrics, tokens, hub, svc)
	router := mux.NewRouter()
	app.SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.AppPort)
		log.Printf("OTLP endpoint: %s", cfg.OTELExporterOTLPEndpoint)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	// Streams would hold Shutdown open until the deadline
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
