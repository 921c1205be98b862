// internal/service/flashdeal/domain/port/events.go
package port

import (
	"context"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
)

// StockEventProducer 把计数器变更事件发布给下游（Kafka 实现）。
// 发布失败只记日志，不影响主流程。
type StockEventProducer interface {
	PublishStockChanged(ctx context.Context, e *domain.StockChangedEvent) error
}
