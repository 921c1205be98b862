// internal/service/flashdeal/infrastructure/gorm_catalog.go
package infrastructure

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

// GormCatalogStore 是 port.CatalogStore 的 GORM 实现。
type GormCatalogStore struct {
	db *gorm.DB
}

// NewGormCatalogStore 创建一个新的 GORM 目录仓储实例
func NewGormCatalogStore(db *gorm.DB) *GormCatalogStore {
	return &GormCatalogStore{db: db}
}

// GetProduct 按 ID 查找商品
func (s *GormCatalogStore) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var model ProductModel
	err := s.db.WithContext(ctx).Where("product_id = ?", productID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("catalog query failed for %s: %w", productID, err)
	}
	return ToDomainProduct(&model), nil
}

// ListActiveProducts 返回全部上架中的商品
func (s *GormCatalogStore) ListActiveProducts(ctx context.Context) ([]*domain.Product, error) {
	var models []ProductModel
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("catalog list failed: %w", err)
	}
	products := make([]*domain.Product, 0, len(models))
	for i := range models {
		products = append(products, ToDomainProduct(&models[i]))
	}
	return products, nil
}

// CreateProduct 插入一件新商品
func (s *GormCatalogStore) CreateProduct(ctx context.Context, p *domain.Product) error {
	if err := s.db.WithContext(ctx).Create(FromDomainProduct(p)).Error; err != nil {
		return fmt.Errorf("catalog insert failed for %s: %w", p.ID, err)
	}
	return nil
}

// SaveProduct 整行覆写商品。Select("*") 保证 false/0 这类零值
// 字段也会被写回，下架(IsActive=false)依赖这一点。
func (s *GormCatalogStore) SaveProduct(ctx context.Context, p *domain.Product) error {
	result := s.db.WithContext(ctx).Model(&ProductModel{}).
		Where("product_id = ?", p.ID).
		Select("*").Omit("product_id", "created_at").
		Updates(FromDomainProduct(p))
	if result.Error != nil {
		return fmt.Errorf("catalog update failed for %s: %w", p.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// AdjustStock 对单个库存字段做自增式更新。
// 必须走 f = f + ? 的单条 UPDATE，并发调用在数据库侧串行化，
// 读改写会丢更新。
func (s *GormCatalogStore) AdjustStock(ctx context.Context, productID string, field port.StockField, delta int64) error {
	column, err := stockColumn(field)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&ProductModel{}).
		Where("product_id = ?", productID).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("stock adjust failed for %s.%s: %w", productID, column, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// SetReservedStock 覆写 reservedStock，供对账进程修复漂移。
func (s *GormCatalogStore) SetReservedStock(ctx context.Context, productID string, value int64) error {
	result := s.db.WithContext(ctx).Model(&ProductModel{}).
		Where("product_id = ?", productID).
		UpdateColumn("reserved_stock", value)
	if result.Error != nil {
		return fmt.Errorf("reserved stock overwrite failed for %s: %w", productID, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// stockColumn 把端口层的字段标识映射到列名。白名单防止
// 任意字符串拼进 SQL。
func stockColumn(field port.StockField) (string, error) {
	switch field {
	case port.StockFieldTotal:
		return "total_stock", nil
	case port.StockFieldReserved:
		return "reserved_stock", nil
	case port.StockFieldSold:
		return "sold_stock", nil
	default:
		return "", fmt.Errorf("unknown stock field: %s", field)
	}
}

var _ port.CatalogStore = (*GormCatalogStore)(nil)
