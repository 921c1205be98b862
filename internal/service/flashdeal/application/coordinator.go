// internal/service/flashdeal/application/coordinator.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Noman836/flesh-deal-api/internal/pkg/logger"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/application/saga"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

// ReservationCoordinator 编排单品和批量预约。
//
// 它不持有任何进程内锁：跨请求的协调全部委托给计数器和注册表的
// 单 key 原子操作，因此多个实例可以无协商地并行运行。
// 同一商品的并发预约者之间没有公平性保证，谁的 TryReserve 先被
// 存储提交谁赢。
type ReservationCoordinator struct {
	counter     port.StockCounter
	registry    port.ReservationRegistry
	catalog     port.CatalogStore
	eligibility port.EligibilityEngine
	events      port.StockEventProducer
	tracer      trace.Tracer

	defaultTTL    time.Duration
	maxBatchItems int

	// 可注入的时钟和 ID 生成器，测试用
	now   func() time.Time
	newID func() string
}

func NewReservationCoordinator(
	counter port.StockCounter,
	registry port.ReservationRegistry,
	catalog port.CatalogStore,
	eligibility port.EligibilityEngine,
	events port.StockEventProducer,
	tracer trace.Tracer,
	defaultTTL time.Duration,
	maxBatchItems int,
) *ReservationCoordinator {
	return &ReservationCoordinator{
		counter:       counter,
		registry:      registry,
		catalog:       catalog,
		eligibility:   eligibility,
		events:        events,
		tracer:        tracer,
		defaultTTL:    defaultTTL,
		maxBatchItems: maxBatchItems,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}
}

// ReserveSingle 为一个用户预约一件商品的若干单位。
//
// 成功路径：资格预检 -> 计数器原子扣减 -> 写预约记录 -> 持久 reservedStock 增量。
// 计数器扣减之后任何一步失败，都必须先把扣掉的数量加回去再返回错误，
// 不允许留下孤儿扣减。
func (c *ReservationCoordinator) ReserveSingle(ctx context.Context, userID, productID string, quantity int64) (*ReservationResult, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.ReserveSingle")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.String("user.id", userID),
		attribute.Int64("quantity", quantity),
	)

	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	product, err := c.preflight(ctx, userID, productID, quantity)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ttl := product.ReservationTTL(c.defaultTTL)
	res, err := c.reserveOne(ctx, userID, product, quantity, ttl, c.newID())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.AddEvent("Stock reserved")
	logger.Ctx(ctx).Info().
		Str("reservation_id", res.ID).
		Str("product_id", productID).
		Int64("quantity", quantity).
		Msg("Stock reserved.")

	return &ReservationResult{
		ReservationID: res.ID,
		ProductID:     res.ProductID,
		Quantity:      res.Quantity,
		ExpiresAt:     res.ExpiresAt,
	}, nil
}

// ReserveBatch 以"要么全部保留、要么一个不留"的语义预约多件商品。
//
// 资格预检先于任何预约尝试，对所有条目做一遍；预检与随后的逐条
// TryReserve 不是原子的，窗口期内商品状态可能变化——这是可接受的，
// 因为数量安全由 TryReserve 把守，预检只管业务资格。
func (c *ReservationCoordinator) ReserveBatch(ctx context.Context, userID string, items []BatchItem) (*BatchReservationResult, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.ReserveBatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Int("batch.size", len(items)),
	)

	if len(items) == 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if len(items) > c.maxBatchItems {
		return nil, domain.ErrBatchSizeExceeded
	}

	// 1. 全量资格预检
	products := make([]*domain.Product, len(items))
	for i, item := range items {
		if item.Quantity < 1 {
			return nil, domain.ErrInvalidQuantity
		}
		p, err := c.preflight(ctx, userID, item.ProductID, item.Quantity)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("item %s: %w", item.ProductID, err)
		}
		products[i] = p
	}

	// 2. 共享批次 ID，逐条预约，失败即逆序回滚
	batchID := c.newID()
	comps := saga.New(batchID)

	// 批次共享同一个到期时刻，取各商品配置的预约时长里最短的那个，
	// 返回的 ExpiresAt 对每个兄弟都成立
	ttl := products[0].ReservationTTL(c.defaultTTL)
	for _, p := range products[1:] {
		if pt := p.ReservationTTL(c.defaultTTL); pt < ttl {
			ttl = pt
		}
	}
	expiresAt := c.now().Add(ttl)

	results := make([]ReservationResult, 0, len(items))
	for i, item := range items {
		item := item
		res, err := c.reserveBatchItem(ctx, userID, products[i], item.Quantity, batchID, len(items), ttl)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch reservation failed, compensating")
			comps.Trigger(ctx)
			return nil, fmt.Errorf("item %s: %w", item.ProductID, err)
		}
		results = append(results, ReservationResult{
			ReservationID: res.ID,
			ProductID:     res.ProductID,
			Quantity:      res.Quantity,
			ExpiresAt:     res.ExpiresAt,
		})
		comps.Add(func(compCtx context.Context) {
			c.rollbackReservation(compCtx, res)
		})
	}

	span.AddEvent("All batch items reserved")
	logger.Ctx(ctx).Info().
		Str("batch_id", batchID).
		Int("items", len(items)).
		Msg("Batch stock reserved.")

	return &BatchReservationResult{
		BatchID:      batchID,
		Reservations: results,
		ExpiresAt:    expiresAt,
	}, nil
}

// Release 取消一个预约，把数量还给计数器。
// 预约不存在（含已过期）返回 Released=false，不视为错误。
func (c *ReservationCoordinator) Release(ctx context.Context, reservationID string) (*ReleaseResult, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.Release")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.id", reservationID))

	// Consume 是原子的删除并取回：并发的两次取消只有一次拿到记录，
	// 计数器只会被加回一次。
	res, err := c.registry.Consume(ctx, reservationID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			span.AddEvent("Reservation already gone, nothing to release")
			return &ReleaseResult{Released: false}, nil
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := c.counter.Release(ctx, res.ProductID, res.Quantity); err != nil {
		span.RecordError(err)
		// 记录已删但计数器没加回来，留给对账进程修复
		logger.Ctx(ctx).Error().Err(err).
			Str("reservation_id", reservationID).
			Msg("Counter release failed after registry delete; reconciliation required.")
		return nil, err
	}

	c.adjustReservedStock(ctx, res.ProductID, -res.Quantity)
	c.publishStockChanged(ctx, res.ProductID, res.Quantity, domain.StockChangeReasonReleased)

	logger.Ctx(ctx).Info().
		Str("reservation_id", reservationID).
		Int64("quantity", res.Quantity).
		Msg("Reservation released, units returned to stock.")

	return &ReleaseResult{Released: true, ProductID: res.ProductID, Quantity: res.Quantity}, nil
}

// ListUserReservations 枚举一个用户当前活跃的预约。
func (c *ReservationCoordinator) ListUserReservations(ctx context.Context, userID string) ([]*domain.Reservation, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.ListUserReservations")
	defer span.End()
	return c.registry.ListByUser(ctx, userID)
}

// preflight 做业务资格检查：商品存在、激活、窗口开放、通过资格规则。
func (c *ReservationCoordinator) preflight(ctx context.Context, userID, productID string, quantity int64) (*domain.Product, error) {
	product, err := c.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, domain.ErrProductInactive
	}
	if !product.DealWindowOpen(c.now()) {
		return nil, domain.ErrDealWindowClosed
	}
	if product.EligibilityRule != "" && c.eligibility != nil {
		ok, err := c.eligibility.Evaluate(product.EligibilityRule, port.EligibilityFact{
			UserID:   userID,
			Quantity: quantity,
		})
		if err != nil {
			return nil, fmt.Errorf("eligibility rule evaluation failed: %w", err)
		}
		if !ok {
			return nil, domain.ErrNotEligible
		}
	}
	return product, nil
}

// reserveOne 是单条预约的核心序列：扣计数器、写记录、调持久字段。
func (c *ReservationCoordinator) reserveOne(ctx context.Context, userID string, product *domain.Product, quantity int64, ttl time.Duration, reservationID string) (*domain.Reservation, error) {
	ok, err := c.counter.TryReserve(ctx, product.ID, quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInsufficientStock
	}

	res, err := domain.NewReservation(reservationID, userID, product.ID, quantity, c.now(), ttl)
	if err != nil {
		// 参数在入口已校验过，到这里失败仍要把计数器补回去
		c.compensateCounter(ctx, product.ID, quantity)
		return nil, err
	}

	if err := c.registry.Create(ctx, res, ttl); err != nil {
		// 计数器已扣、记录没写成：必须补偿，否则这些单位永远丢失
		c.compensateCounter(ctx, product.ID, quantity)
		return nil, fmt.Errorf("failed to persist reservation record: %w", err)
	}

	c.adjustReservedStock(ctx, product.ID, quantity)
	c.publishStockChanged(ctx, product.ID, -quantity, domain.StockChangeReasonReserved)
	return res, nil
}

// reserveBatchItem 在批次语境下预约一个条目。
// 兄弟记录各自持有独立的预约 ID，批次归属和兄弟总数写在记录里，
// 结算时据此聚合并校验批次完整性。同一商品出现在多个条目时
// 记录互不覆盖，每条都独立占着自己扣掉的数量。
func (c *ReservationCoordinator) reserveBatchItem(ctx context.Context, userID string, product *domain.Product, quantity int64, batchID string, batchSize int, ttl time.Duration) (*domain.Reservation, error) {
	ok, err := c.counter.TryReserve(ctx, product.ID, quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInsufficientStock
	}

	res, err := domain.NewReservation(c.newID(), userID, product.ID, quantity, c.now(), ttl)
	if err != nil {
		c.compensateCounter(ctx, product.ID, quantity)
		return nil, err
	}
	res.AttachToBatch(batchID, batchSize)

	if err := c.registry.Create(ctx, res, ttl); err != nil {
		c.compensateCounter(ctx, product.ID, quantity)
		return nil, fmt.Errorf("failed to persist reservation record: %w", err)
	}

	c.adjustReservedStock(ctx, product.ID, quantity)
	c.publishStockChanged(ctx, product.ID, -quantity, domain.StockChangeReasonReserved)
	return res, nil
}

// rollbackReservation 是批量预约失败时对单个兄弟的补偿：
// 删记录、加回计数器、回退持久 reservedStock。
func (c *ReservationCoordinator) rollbackReservation(ctx context.Context, res *domain.Reservation) {
	if _, err := c.registry.Consume(ctx, res.ID); err != nil && !errors.Is(err, domain.ErrReservationNotFound) {
		logger.Ctx(ctx).Error().Err(err).
			Str("reservation_id", res.ID).
			Msg("Compensation: failed to delete sibling reservation.")
		// 记录删不掉就不能加回计数器，否则等它过期后对账会多出一份
		return
	}
	c.compensateCounter(ctx, res.ProductID, res.Quantity)
	c.adjustReservedStock(ctx, res.ProductID, -res.Quantity)
	c.publishStockChanged(ctx, res.ProductID, res.Quantity, domain.StockChangeReasonReleased)
}

func (c *ReservationCoordinator) compensateCounter(ctx context.Context, productID string, quantity int64) {
	if err := c.counter.Release(ctx, productID, quantity); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("product_id", productID).
			Int64("quantity", quantity).
			Msg("CRITICAL: counter compensation failed; stock lost until reconciliation.")
	}
}

// adjustReservedStock 维护持久化的 reservedStock 镜像。
// 失败不阻断主流程：对账进程会用注册表的实时求和修正它。
func (c *ReservationCoordinator) adjustReservedStock(ctx context.Context, productID string, delta int64) {
	if err := c.catalog.AdjustStock(ctx, productID, port.StockFieldReserved, delta); err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("product_id", productID).
			Int64("delta", delta).
			Msg("Failed to adjust durable reservedStock; will be reconciled.")
	}
}

func (c *ReservationCoordinator) publishStockChanged(ctx context.Context, productID string, delta int64, reason string) {
	if c.events == nil {
		return
	}
	available, err := c.counter.Get(ctx, productID)
	if err != nil {
		return
	}
	_ = c.events.PublishStockChanged(ctx, &domain.StockChangedEvent{
		ProductID:  productID,
		Available:  available,
		Delta:      delta,
		Reason:     reason,
		OccurredAt: c.now(),
	})
}
