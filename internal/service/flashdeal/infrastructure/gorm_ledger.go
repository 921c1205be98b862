// internal/service/flashdeal/infrastructure/gorm_ledger.go
package infrastructure

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

// GormOrderLedger 是 port.OrderLedger 的 GORM 实现。
// 需要 gorm.Open 时开启 TranslateError，唯一键冲突才会被
// 翻译成 gorm.ErrDuplicatedKey。
type GormOrderLedger struct {
	db *gorm.DB
}

// NewGormOrderLedger 创建一个新的 GORM 台账实例
func NewGormOrderLedger(db *gorm.DB) *GormOrderLedger {
	return &GormOrderLedger{db: db}
}

// InsertOrder 把订单连同行项目写入台账。
// ReservationRef 撞唯一索引时返回 domain.ErrDuplicateOrder，
// 调用方据此改走"读取已有订单"的幂等路径。
func (l *GormOrderLedger) InsertOrder(ctx context.Context, o *domain.Order) error {
	err := l.db.WithContext(ctx).Create(FromDomainOrder(o)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateOrder
		}
		return fmt.Errorf("order ledger insert failed for %s: %w", o.ID, err)
	}
	return nil
}

// GetOrderByReservationRef 按源预约 ID 查找订单
func (l *GormOrderLedger) GetOrderByReservationRef(ctx context.Context, ref string) (*domain.Order, error) {
	var model OrderModel
	err := l.db.WithContext(ctx).Preload("Items").Where("reservation_ref = ?", ref).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, fmt.Errorf("order ledger query failed for %s: %w", ref, err)
	}
	return ToDomainOrder(&model), nil
}

// SumSoldQuantity 汇总某商品全部订单行的数量
func (l *GormOrderLedger) SumSoldQuantity(ctx context.Context, productID string) (int64, error) {
	var total int64
	err := l.db.WithContext(ctx).Model(&OrderItemModel{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("order ledger sold sum failed for %s: %w", productID, err)
	}
	return total, nil
}

var _ port.OrderLedger = (*GormOrderLedger)(nil)
