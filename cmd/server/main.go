package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/totemic/totemic-go/internal/config"
	"github.com/totemic/totemic-go/internal/db"
	"github.com/totemic/totemic-go/internal/handler"
	"github.com/totemic/totemic-go/internal/middleware"
	"github.com/totemic/totemic-go/internal/repository"
	"github.com/totemic/totemic-go/internal/router"
	"github.com/totemic/totemic-go/internal/service"
)

func main() {
	cfg := config.Load()
	middleware.InitLogger(cfg.LogLevel, "totemic-api")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	store := repository.NewPgStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to prepare schema: %v", err)
	}

	cache := service.NewCacheService(cfg.RedisURL)
	defer cache.Close()

	loc, err := time.LoadLocation(cfg.QuotaTimezone)
	if err != nil {
		log.Printf("invalid QUOTA_TIMEZONE %q, falling back to UTC", cfg.QuotaTimezone)
		loc = time.UTC
	}

	decaySvc := service.NewDecayService()
	quotaSvc := service.NewQuotaService(cfg.QuotaStandard, cfg.QuotaPremium, loc)
	engageSvc := service.NewEngagementService(store, decaySvc, quotaSvc, cache, cfg.EngageMaxRetries, cfg.EngageBackoffBase)
	profileSvc := service.NewProfileService(store, store, quotaSvc)
	syncSvc := service.NewSyncService(store, decaySvc)

	handler.InitMetrics(pool)

	worker := service.NewCrispWorker(pool, store, decaySvc, cache, cfg.WorkerBatchWindow, cfg.WorkerSweepInterval)
	worker.SetRecalcObserver(handler.Metrics.CrispRecalcDuration)
	go worker.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      "Totemic API",
		ServerHeader: "Totemic",
	})

	router.Setup(app, &router.Handlers{
		Engage:  handler.NewEngageHandler(engageSvc),
		Post:    handler.NewPostHandler(engageSvc),
		Profile: handler.NewProfileHandler(profileSvc),
		Sync:    handler.NewSyncHandler(syncSvc),
		Health:  handler.NewHealthHandler(pool, cache.Client()),
	}, cfg.CORSOrigins)

	log.Printf("Totemic backend starting on :%s (env=%s)", cfg.Port, cfg.Environment)
	log.Fatal(app.Listen(":" + cfg.Port))
}
