// internal/service/flashdeal/domain/product.go
package domain

import "time"

// StockStatus 是面向展示的库存档位。
type StockStatus string

const (
	StockStatusOutOfStock StockStatus = "OUT_OF_STOCK"
	StockStatusLow        StockStatus = "LOW_STOCK"
	StockStatusAvailable  StockStatus = "AVAILABLE"
)

// Product 是目录里的一件秒杀商品。
// totalStock / reservedStock / soldStock 是持久化的事实，
// 快速计数器里的可用数是它们的派生值：total - reserved - sold。
type Product struct {
	ID          string
	SKU         string
	Name        string
	Description string
	Price       float64
	Category    string

	TotalStock    int64
	ReservedStock int64
	SoldStock     int64

	IsActive bool

	// 秒杀窗口配置
	DealStartTime time.Time
	DealEndTime   time.Time
	// 单次预约允许保留的最长时间（秒），0 表示用系统默认值
	MaxReservationSeconds int

	// 可选的 CEL 资格规则，为空代表不限制。
	// 规则可引用变量 quantity (int) 与 user_id (string)。
	EligibilityRule string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DealWindowOpen 判断给定时刻秒杀窗口是否开放。
func (p *Product) DealWindowOpen(now time.Time) bool {
	return !now.Before(p.DealStartTime) && !now.After(p.DealEndTime)
}

// ReservationTTL 返回本商品预约的存活时长。
func (p *Product) ReservationTTL(fallback time.Duration) time.Duration {
	if p.MaxReservationSeconds > 0 {
		return time.Duration(p.MaxReservationSeconds) * time.Second
	}
	return fallback
}

// StatusFor 根据当前可用数计算库存档位。
// lowRatio 是 LOW_STOCK 的阈值比例，通常为 0.1。
func (p *Product) StatusFor(available int64, lowRatio float64) StockStatus {
	switch {
	case available <= 0:
		return StockStatusOutOfStock
	case float64(available) < float64(p.TotalStock)*lowRatio:
		return StockStatusLow
	default:
		return StockStatusAvailable
	}
}
