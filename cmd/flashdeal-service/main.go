// cmd/flashdeal-service/main.go
package main

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/Noman836/flesh-deal-api/internal/pkg/bootstrap"
	"github.com/Noman836/flesh-deal-api/internal/pkg/logger"
	"github.com/Noman836/flesh-deal-api/internal/pkg/mq"
	"github.com/Noman836/flesh-deal-api/internal/pkg/redis"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/application"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/infrastructure"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/interfaces"
)

const serviceName = "flashdeal-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	// --- 基础设施 ---
	redisClient := redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err := redisClient.Ping(context.Background()); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	db, err := infrastructure.OpenMySQL(cfg.Infra.Mysql.DSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}

	kafkaWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.StockEventsTopic)

	// --- 适配器 ---
	counter, err := infrastructure.NewCounterRedisAdapter(redisClient)
	if err != nil {
		log.Fatalf("failed to create stock counter adapter: %v", err)
	}
	registry, err := infrastructure.NewRegistryRedisAdapter(redisClient)
	if err != nil {
		log.Fatalf("failed to create reservation registry adapter: %v", err)
	}
	catalog := infrastructure.NewGormCatalogStore(db)
	ledger := infrastructure.NewGormOrderLedger(db)
	events := infrastructure.NewKafkaStockEventProducer(kafkaWriter)
	eligibility, err := infrastructure.NewCelEligibilityEngine()
	if err != nil {
		log.Fatalf("failed to create eligibility engine: %v", err)
	}

	// --- 应用服务 ---
	tracer := otel.Tracer(serviceName)
	coordinator := application.NewReservationCoordinator(
		counter, registry, catalog, eligibility, events, tracer,
		time.Duration(cfg.App.ReservationTTLSeconds)*time.Second,
		cfg.App.MaxBatchItems,
	)
	finalizer := application.NewFinalizationService(registry, catalog, ledger, tracer)
	catalogSync := application.NewCatalogSyncService(catalog, counter, registry, events, tracer)
	stockStatus := application.NewStockStatusService(catalog, counter, registry, tracer, cfg.App.LowStockRatio)

	handler := interfaces.NewFlashDealHandler(coordinator, finalizer, catalogSync, stockStatus)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8084,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			if err := kafkaWriter.Close(); err != nil {
				log.Printf("Error closing kafka writer: %v", err)
			}
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
		},
	})
}
