// internal/service/flashdeal/domain/event.go
package domain

import "time"

// 计数器变更的原因，写进事件供下游区分。
const (
	StockChangeReasonReserved    = "reserved"
	StockChangeReasonReleased    = "released"
	StockChangeReasonRestocked   = "restocked"
	StockChangeReasonDeactivated = "deactivated"
	StockChangeReasonReconciled  = "reconciled"
)

// StockChangedEvent 在每次快速计数器变更后发布到 Kafka，
// push-gateway 消费后把最新可用数广播给订阅了该商品的页面。
type StockChangedEvent struct {
	ProductID  string    `json:"productId"`
	Available  int64     `json:"available"`
	Delta      int64     `json:"delta"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}
