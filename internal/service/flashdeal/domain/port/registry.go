// internal/service/flashdeal/domain/port/registry.go
package port

import (
	"context"
	"time"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
)

// ReservationRegistry 是预约记录存储的出站端口。
//
// 记录带 TTL，到期后连同索引项一起自行消失，注册表不会发出任何通知；
// 过期预约占用的计数器份额由对账进程回收，不是注册表的职责。
type ReservationRegistry interface {
	// Create 持久化记录并带上过期时间，同时维护按用户、按商品两个索引。
	Create(ctx context.Context, r *domain.Reservation, ttl time.Duration) error

	// Get 读取记录；不存在（含已过期）返回 domain.ErrReservationNotFound。
	Get(ctx context.Context, reservationID string) (*domain.Reservation, error)

	// Consume 原子地"删除并返回删除前的值"。并发调用同一个 ID 时
	// 只有第一个调用方拿到记录，其余得到 domain.ErrReservationNotFound。
	// 取消和结算路径都必须走这里，双方都不允许先读后删。
	Consume(ctx context.Context, reservationID string) (*domain.Reservation, error)

	// ListByUser / ListByProduct 通过索引枚举活跃预约，
	// 自动过滤掉底层记录已经过期的索引残留。
	ListByUser(ctx context.Context, userID string) ([]*domain.Reservation, error)
	ListByProduct(ctx context.Context, productID string) ([]*domain.Reservation, error)
}
