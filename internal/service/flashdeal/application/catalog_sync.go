// internal/service/flashdeal/application/catalog_sync.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Noman836/flesh-deal-api/internal/pkg/logger"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

// CatalogSyncService 是目录侧变更到快速计数器的薄桥接。
// 计数器不是事实来源，目录才是；这里只负责把目录级的库存变化
// （上新、补货、下架）反映到计数器里。
type CatalogSyncService struct {
	catalog  port.CatalogStore
	counter  port.StockCounter
	registry port.ReservationRegistry
	events   port.StockEventProducer
	tracer   trace.Tracer

	now func() time.Time
}

func NewCatalogSyncService(catalog port.CatalogStore, counter port.StockCounter, registry port.ReservationRegistry, events port.StockEventProducer, tracer trace.Tracer) *CatalogSyncService {
	return &CatalogSyncService{
		catalog:  catalog,
		counter:  counter,
		registry: registry,
		events:   events,
		tracer:   tracer,
		now:      time.Now,
	}
}

// CreateProduct 新建商品并把计数器播种为 totalStock，商品随之进入秒杀体系。
func (s *CatalogSyncService) CreateProduct(ctx context.Context, p *domain.Product) error {
	ctx, span := s.tracer.Start(ctx, "catalogsync.CreateProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.sku", p.SKU))

	if err := s.catalog.CreateProduct(ctx, p); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := s.counter.Initialize(ctx, p.ID, p.TotalStock); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.publish(ctx, p.ID, p.TotalStock, p.TotalStock, domain.StockChangeReasonRestocked)

	logger.Ctx(ctx).Info().
		Str("product_id", p.ID).
		Int64("total_stock", p.TotalStock).
		Msg("Product created and stock counter initialized.")
	return nil
}

// OnRestock 把总库存调整为 newTotal 并重新初始化计数器。
//
// 引擎不维护活跃预约量的实时汇总，这里只能通过按商品索引枚举活跃
// 预约并求和来重算：counter = newTotal - soldStock - 活跃预约之和。
func (s *CatalogSyncService) OnRestock(ctx context.Context, productID string, newTotal int64) error {
	ctx, span := s.tracer.Start(ctx, "catalogsync.OnRestock")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.Int64("new_total", newTotal),
	)

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	reserved, err := s.liveReservedSum(ctx, productID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	available := newTotal - product.SoldStock - reserved
	if available < 0 {
		available = 0
	}

	product.TotalStock = newTotal
	product.UpdatedAt = s.now()
	if err := s.catalog.SaveProduct(ctx, product); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := s.counter.Initialize(ctx, productID, available); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.publish(ctx, productID, available, available, domain.StockChangeReasonRestocked)

	logger.Ctx(ctx).Info().
		Str("product_id", productID).
		Int64("new_total", newTotal).
		Int64("available", available).
		Msg("Product restocked, counter re-initialized.")
	return nil
}

// OnDeactivate 把计数器清零，阻止新预约。
// 已经存在的预约不受影响，照常走向消费、取消或过期。
func (s *CatalogSyncService) OnDeactivate(ctx context.Context, productID string) error {
	ctx, span := s.tracer.Start(ctx, "catalogsync.OnDeactivate")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	product.IsActive = false
	product.UpdatedAt = s.now()
	if err := s.catalog.SaveProduct(ctx, product); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := s.counter.Initialize(ctx, productID, 0); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.publish(ctx, productID, 0, 0, domain.StockChangeReasonDeactivated)

	logger.Ctx(ctx).Info().Str("product_id", productID).Msg("Product deactivated, counter zeroed.")
	return nil
}

func (s *CatalogSyncService) liveReservedSum(ctx context.Context, productID string) (int64, error) {
	reservations, err := s.registry.ListByProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, r := range reservations {
		sum += r.Quantity
	}
	return sum, nil
}

func (s *CatalogSyncService) publish(ctx context.Context, productID string, available, delta int64, reason string) {
	if s.events == nil {
		return
	}
	_ = s.events.PublishStockChanged(ctx, &domain.StockChangedEvent{
		ProductID:  productID,
		Available:  available,
		Delta:      delta,
		Reason:     reason,
		OccurredAt: s.now(),
	})
}
