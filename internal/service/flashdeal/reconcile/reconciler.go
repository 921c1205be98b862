// internal/service/flashdeal/reconcile/reconciler.go
package reconcile

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Noman836/flesh-deal-api/internal/pkg/logger"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

// Reconciler 周期性地把快速计数器和持久目录拉回一致。
//
// 预约到期后注册表里的记录静默消失，没有任何回调，被它占着的
// 计数器份额不会自动回来；补偿路径上的失败也会留下漂移。
// 对账是唯一的修复手段：以"目录事实 + 注册表实时求和"为准，
// 重算每个上架商品的期望计数器值并覆写。
//
// 同一时刻只能有一个实例在扫（覆写计数器不能并发），部署多副本时
// 由 ZooKeeper 分布式锁选主，见 cmd/stock-reconciler。
type Reconciler struct {
	catalog  port.CatalogStore
	counter  port.StockCounter
	registry port.ReservationRegistry
	ledger   port.OrderLedger
	events   port.StockEventProducer
	tracer   trace.Tracer

	interval    time.Duration
	concurrency int
}

func NewReconciler(
	catalog port.CatalogStore,
	counter port.StockCounter,
	registry port.ReservationRegistry,
	ledger port.OrderLedger,
	events port.StockEventProducer,
	tracer trace.Tracer,
	interval time.Duration,
) *Reconciler {
	return &Reconciler{
		catalog:     catalog,
		counter:     counter,
		registry:    registry,
		ledger:      ledger,
		events:      events,
		tracer:      tracer,
		interval:    interval,
		concurrency: 8,
	}
}

// Run 按固定间隔扫描，直到 ctx 取消。启动时先立即扫一轮。
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.SweepOnce(ctx); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Initial reconciliation sweep failed.")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.SweepOnce(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Reconciliation sweep failed.")
			}
		}
	}
}

// SweepOnce 对全部上架商品做一轮对账。
// 单个商品的失败不会中断整轮，最后汇总返回第一个错误。
func (r *Reconciler) SweepOnce(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "reconciler.SweepOnce")
	defer span.End()

	products, err := r.catalog.ListActiveProducts(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("products", len(products)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, p := range products {
		p := p
		g.Go(func() error {
			if err := r.reconcileProduct(gctx, p); err != nil {
				logger.Ctx(gctx).Error().Err(err).
					Str("product_id", p.ID).
					Msg("Failed to reconcile product.")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// reconcileProduct 对单个商品执行修复。
//
// 期望计数器值 = totalStock - 台账已售之和 - 注册表活跃预约之和。
// 已售数量以台账为准而不是目录的 soldStock 镜像：结算崩溃在
// "订单已写、持久增量没做"的窗口里时，镜像会永久少记。
// 求和与覆写之间有新的预约进来会被当成漂移误修一次，下一轮会再
// 修正回来，这种抖动只发生在漂移修复的瞬间，可以接受。
func (r *Reconciler) reconcileProduct(ctx context.Context, p *domain.Product) error {
	reservations, err := r.registry.ListByProduct(ctx, p.ID)
	if err != nil {
		return err
	}
	var liveReserved int64
	for _, res := range reservations {
		liveReserved += res.Quantity
	}

	ledgerSold, err := r.ledger.SumSoldQuantity(ctx, p.ID)
	if err != nil {
		return err
	}

	expected := p.TotalStock - ledgerSold - liveReserved
	if expected < 0 {
		expected = 0
	}

	actual, err := r.counter.Get(ctx, p.ID)
	if err != nil {
		return err
	}

	if actual != expected {
		logger.Ctx(ctx).Warn().
			Str("product_id", p.ID).
			Int64("counter", actual).
			Int64("expected", expected).
			Int64("live_reserved", liveReserved).
			Msg("Stock counter drift detected, repairing.")

		if err := r.counter.Initialize(ctx, p.ID, expected); err != nil {
			return err
		}
		r.publishReconciled(ctx, p.ID, expected, expected-actual)
	}

	// 持久 reservedStock 镜像同样以注册表为准
	if p.ReservedStock != liveReserved {
		if err := r.catalog.SetReservedStock(ctx, p.ID, liveReserved); err != nil {
			return err
		}
	}

	// soldStock 镜像按台账补齐
	if p.SoldStock != ledgerSold {
		logger.Ctx(ctx).Warn().
			Str("product_id", p.ID).
			Int64("sold_stock", p.SoldStock).
			Int64("ledger_sold", ledgerSold).
			Msg("Durable soldStock diverged from order ledger, repairing.")
		if err := r.catalog.AdjustStock(ctx, p.ID, port.StockFieldSold, ledgerSold-p.SoldStock); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) publishReconciled(ctx context.Context, productID string, available, delta int64) {
	if r.events == nil {
		return
	}
	_ = r.events.PublishStockChanged(ctx, &domain.StockChangedEvent{
		ProductID:  productID,
		Available:  available,
		Delta:      delta,
		Reason:     domain.StockChangeReasonReconciled,
		OccurredAt: time.Now(),
	})
}
