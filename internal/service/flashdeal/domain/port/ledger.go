// internal/service/flashdeal/domain/port/ledger.go
package port

import (
	"context"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
)

// OrderLedger 是持久订单台账的出站端口。
//
// InsertOrder 必须以 ReservationRef 为唯一键：预约删除和订单写入之间
// 没有共享事务，崩溃后的重试靠这个唯一键做到幂等——要么补完原始写入，
// 要么发现订单已存在并返回 domain.ErrDuplicateOrder。
type OrderLedger interface {
	InsertOrder(ctx context.Context, o *domain.Order) error
	GetOrderByReservationRef(ctx context.Context, ref string) (*domain.Order, error)

	// SumSoldQuantity 汇总某商品已进台账的订单行数量。对账以它为
	// soldStock 的权威来源：结算在"订单已写、持久增量没做"的窗口里
	// 崩溃时，目录里的 soldStock 会永久少记，只有台账还原得出来。
	SumSoldQuantity(ctx context.Context, productID string) (int64, error)
}
