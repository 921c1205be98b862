// internal/service/flashdeal/application/finalization.go
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
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

// FinalizationService 把预约转化为持久订单：
// 原子地消费预约记录，写订单台账，并把数量从 reserved 挪到 sold。
//
// 预约删除和订单写入之间没有共享事务。台账以预约 ID 为唯一键，
// 崩溃后的重试要么补完原始写入，要么发现订单已存在——这是对
// 双写间隙的既定处理策略，而不是去做跨存储的分布式事务。
type FinalizationService struct {
	registry port.ReservationRegistry
	catalog  port.CatalogStore
	ledger   port.OrderLedger
	tracer   trace.Tracer

	now   func() time.Time
	newID func() string
}

func NewFinalizationService(registry port.ReservationRegistry, catalog port.CatalogStore, ledger port.OrderLedger, tracer trace.Tracer) *FinalizationService {
	return &FinalizationService{
		registry: registry,
		catalog:  catalog,
		ledger:   ledger,
		tracer:   tracer,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Finalize 结算单个预约。
//
// Consume 是注册表侧的单个条件删除（删除并返回删除前的值），
// 并发提交同一个预约 ID 时只有第一个调用方拿到记录，
// 因此同一个预约至多产生一笔订单。
func (s *FinalizationService) Finalize(ctx context.Context, reservationID string, details *OrderDetails) (*OrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "finalization.Finalize")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.id", reservationID))

	res, err := s.registry.Consume(ctx, reservationID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.AddEvent("Reservation consumed")

	order, err := s.writeOrder(ctx, res.UserID, reservationID, []*domain.Reservation{res}, details)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "durable write failed after reservation was consumed")
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("reservation_id", reservationID).
		Msg("Reservation finalized into order.")
	return toOrderResult(order), nil
}

// FinalizeBatch 结算一个批次的全部兄弟预约，聚合成一笔多行订单。
//
// 兄弟集合通过用户自己的索引枚举（记录里带着批次 ID），注册表没有
// 批次级索引。任何一个兄弟已经消失（被消费或过期）都会让整个结算
// 失败，绝不悄悄生成残缺订单。
func (s *FinalizationService) FinalizeBatch(ctx context.Context, userID, batchID string, details *OrderDetails) (*OrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "finalization.FinalizeBatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.id", batchID),
		attribute.String("user.id", userID),
	)

	all, err := s.registry.ListByUser(ctx, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	var siblings []*domain.Reservation
	for _, r := range all {
		if r.BatchID == batchID {
			siblings = append(siblings, r)
		}
	}
	if len(siblings) == 0 {
		span.SetStatus(codes.Error, "no reservations found for batch")
		return nil, domain.ErrPartialBatchUnavailable
	}
	// 记录里携带的兄弟总数用来发现"部分过期"：能列出来的比创建时少，
	// 说明有兄弟已经没了。
	if siblings[0].BatchSize > 0 && len(siblings) != siblings[0].BatchSize {
		span.SetStatus(codes.Error, "batch is incomplete")
		return nil, domain.ErrPartialBatchUnavailable
	}

	// 逐个原子消费。中途有兄弟正好消失时，把已消费的恢复回去，
	// 让调用方可以整体重试或放弃。
	consumed := make([]*domain.Reservation, 0, len(siblings))
	for _, r := range siblings {
		rec, err := s.registry.Consume(ctx, r.ID)
		if err != nil {
			if errors.Is(err, domain.ErrReservationNotFound) {
				s.restoreConsumed(ctx, consumed)
				span.SetStatus(codes.Error, "sibling vanished during batch finalization")
				return nil, domain.ErrPartialBatchUnavailable
			}
			s.restoreConsumed(ctx, consumed)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		consumed = append(consumed, rec)
	}
	span.AddEvent("All batch siblings consumed")

	order, err := s.writeOrder(ctx, userID, batchID, consumed, details)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "durable write failed after batch was consumed")
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("batch_id", batchID).
		Int("items", len(consumed)).
		Msg("Batch finalized into order.")
	return toOrderResult(order), nil
}

// writeOrder 完成持久侧的转化：查价、写台账、挪动 reserved -> sold。
func (s *FinalizationService) writeOrder(ctx context.Context, userID, reservationRef string, consumed []*domain.Reservation, details *OrderDetails) (*domain.Order, error) {
	items := make([]domain.OrderItem, 0, len(consumed))
	for _, res := range consumed {
		product, err := s.catalog.GetProduct(ctx, res.ProductID)
		if err != nil {
			// 预约已消费但商品查不到：必须把这个错误显式抛给调用方，
			// 由运维或重试流程介入，而不是吞掉。
			return nil, fmt.Errorf("reservation %s consumed but product lookup failed: %w", res.ID, err)
		}
		items = append(items, domain.OrderItem{
			ProductID: res.ProductID,
			SKU:       product.SKU,
			Quantity:  res.Quantity,
			UnitPrice: product.Price,
			Subtotal:  product.Price * float64(res.Quantity),
		})
	}

	order, err := domain.NewOrder(s.newID(), userID, reservationRef, items, s.now())
	if err != nil {
		return nil, err
	}
	if details != nil {
		order.Notes = details.Notes
	}

	if err := s.ledger.InsertOrder(ctx, order); err != nil {
		if errors.Is(err, domain.ErrDuplicateOrder) {
			// 上一次结算已经写过订单（双写间隙后的重试），取回并返回它。
			// 那次崩溃可能没来得及做 sold/reserved 的持久增量，
			// 对账进程会按台账把镜像补齐，这里不重复调整。
			existing, getErr := s.ledger.GetOrderByReservationRef(ctx, reservationRef)
			if getErr != nil {
				return nil, fmt.Errorf("order already exists but could not be loaded: %w", getErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("order write failed after reservation was consumed: %w", err)
	}

	for _, res := range consumed {
		if err := s.catalog.AdjustStock(ctx, res.ProductID, port.StockFieldReserved, -res.Quantity); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("product_id", res.ProductID).
				Msg("Failed to decrement durable reservedStock; will be reconciled.")
		}
		if err := s.catalog.AdjustStock(ctx, res.ProductID, port.StockFieldSold, res.Quantity); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("product_id", res.ProductID).
				Msg("Failed to increment durable soldStock; manual reconciliation required.")
		}
	}
	return order, nil
}

// restoreConsumed 把批量结算中途已消费的记录按剩余 TTL 写回注册表。
func (s *FinalizationService) restoreConsumed(ctx context.Context, consumed []*domain.Reservation) {
	now := s.now()
	for _, res := range consumed {
		remaining := res.Remaining(now)
		if remaining <= 0 {
			continue
		}
		if err := s.registry.Create(ctx, res, remaining); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("reservation_id", res.ID).
				Msg("Failed to restore consumed sibling after aborted batch finalization.")
		}
	}
}
