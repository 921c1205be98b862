// internal/service/flashdeal/application/stock_status.go
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

// StockStatusService 聚合一件商品的库存视图：
// 持久字段来自目录，reservedStock 用注册表活跃预约实时求和，
// availableStock 直接读计数器（只展示，不做准入）。
type StockStatusService struct {
	catalog  port.CatalogStore
	counter  port.StockCounter
	registry port.ReservationRegistry
	tracer   trace.Tracer

	lowStockRatio float64
}

func NewStockStatusService(catalog port.CatalogStore, counter port.StockCounter, registry port.ReservationRegistry, tracer trace.Tracer, lowStockRatio float64) *StockStatusService {
	return &StockStatusService{
		catalog:       catalog,
		counter:       counter,
		registry:      registry,
		tracer:        tracer,
		lowStockRatio: lowStockRatio,
	}
}

// StockStatus 返回一件商品的完整库存视图。
func (s *StockStatusService) StockStatus(ctx context.Context, productID string) (*StockStatusResult, error) {
	ctx, span := s.tracer.Start(ctx, "stockstatus.StockStatus")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	available, err := s.counter.Get(ctx, productID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reservations, err := s.registry.ListByProduct(ctx, productID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var reserved int64
	summaries := make([]ReservationSummary, 0, len(reservations))
	for _, r := range reservations {
		reserved += r.Quantity
		summaries = append(summaries, ReservationSummary{
			ReservationID: r.ID,
			UserID:        r.UserID,
			Quantity:      r.Quantity,
			CreatedAt:     r.CreatedAt,
			ExpiresAt:     r.ExpiresAt,
		})
	}

	var reservationPct float64
	if product.TotalStock > 0 {
		reservationPct = float64(reserved) / float64(product.TotalStock) * 100
	}

	return &StockStatusResult{
		ProductID:             product.ID,
		SKU:                   product.SKU,
		Name:                  product.Name,
		TotalStock:            product.TotalStock,
		SoldStock:             product.SoldStock,
		ReservedStock:         reserved,
		AvailableStock:        available,
		Status:                product.StatusFor(available, s.lowStockRatio),
		ReservationPercentage: reservationPct,
		Reservations:          summaries,
	}, nil
}
