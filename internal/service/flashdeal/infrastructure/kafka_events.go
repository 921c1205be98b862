// internal/service/flashdeal/infrastructure/kafka_events.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/Noman836/flesh-deal-api/internal/pkg/mq"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

// KafkaStockEventProducer 把库存变更事件发到 Kafka。
// 以 productID 作为消息 Key，同一商品的事件落在同一分区，
// push-gateway 消费到的可用数不会乱序。
type KafkaStockEventProducer struct {
	writer *kafka.Writer
}

func NewKafkaStockEventProducer(writer *kafka.Writer) *KafkaStockEventProducer {
	return &KafkaStockEventProducer{writer: writer}
}

// PublishStockChanged 序列化并发送一条库存变更事件。
func (p *KafkaStockEventProducer) PublishStockChanged(ctx context.Context, e *domain.StockChangedEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal stock event for %s: %w", e.ProductID, err)
	}
	if err := mq.ProduceMessage(ctx, p.writer, []byte(e.ProductID), payload); err != nil {
		return fmt.Errorf("failed to publish stock event for %s: %w", e.ProductID, err)
	}
	return nil
}

var _ port.StockEventProducer = (*KafkaStockEventProducer)(nil)
