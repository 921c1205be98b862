// cmd/stock-reconciler/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/Noman836/flesh-deal-api/internal/pkg/bootstrap"
	"github.com/Noman836/flesh-deal-api/internal/pkg/logger"
	"github.com/Noman836/flesh-deal-api/internal/pkg/mq"
	"github.com/Noman836/flesh-deal-api/internal/pkg/redis"
	"github.com/Noman836/flesh-deal-api/internal/pkg/tracing"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/infrastructure"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/reconcile"
	"github.com/Noman836/flesh-deal-api/internal/zookeeper"
)

const serviceName = "stock-reconciler"

// 对账进程是个后台 worker，不对外提供 HTTP 服务。
// 多副本部署时通过 ZooKeeper 分布式锁选主：只有持锁实例执行扫描，
// 其余实例阻塞在 Lock 上等待接替，主挂掉后会话过期锁自动释放。
func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}

	redisClient := redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err := redisClient.Ping(context.Background()); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	db, err := infrastructure.OpenMySQL(cfg.Infra.Mysql.DSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}

	kafkaWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.StockEventsTopic)

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

	// --- leader 选举 ---
	zkConn, err := zookeeper.NewConn(cfg.Infra.Zookeeper.Servers, 10*time.Second)
	if err != nil {
		log.Fatalf("failed to connect to zookeeper: %v", err)
	}
	lock, err := zookeeper.NewDistributedLock(zkConn, serviceName)
	if err != nil {
		log.Fatalf("failed to create distributed lock: %v", err)
	}

	log.Printf("%s waiting for leadership...", serviceName)
	if err := lock.Lock(24 * time.Hour); err != nil {
		log.Fatalf("failed to acquire leadership: %v", err)
	}
	log.Printf("%s acquired leadership, starting sweeps", serviceName)

	reconciler := reconcile.NewReconciler(
		catalog, counter, registry, ledger, events,
		otel.Tracer(serviceName),
		time.Duration(cfg.App.ReconcileIntervalSeconds)*time.Second,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	if err := reconciler.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("Reconciler stopped: %v", err)
	}

	// 关停顺序和启动相反
	if err := lock.Unlock(); err != nil {
		log.Printf("Error releasing leadership lock: %v", err)
	}
	zkConn.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := kafkaWriter.Close(); err != nil {
		log.Printf("Error closing kafka writer: %v", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing redis client: %v", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down tracer provider: %v", err)
	}
	log.Printf("%s gracefully shut down.", serviceName)
}
