// internal/service/flashdeal/domain/port/catalog.go
package port

import (
	"context"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
)

// StockField 标识商品上可被增量调整的持久库存字段。
type StockField string

const (
	StockFieldTotal    StockField = "total_stock"
	StockFieldReserved StockField = "reserved_stock"
	StockFieldSold     StockField = "sold_stock"
)

// CatalogStore 是持久化商品目录的出站端口（MySQL 实现）。
type CatalogStore interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	ListActiveProducts(ctx context.Context) ([]*domain.Product, error)

	CreateProduct(ctx context.Context, p *domain.Product) error
	SaveProduct(ctx context.Context, p *domain.Product) error

	// AdjustStock 对指定字段做条件自增（delta 可为负），
	// 必须以单条 UPDATE .. SET f = f + ? 的形式执行，不做读改写。
	AdjustStock(ctx context.Context, productID string, field StockField, delta int64) error

	// SetReservedStock 直接覆写 reservedStock，对账进程修复漂移时使用。
	SetReservedStock(ctx context.Context, productID string, value int64) error
}
