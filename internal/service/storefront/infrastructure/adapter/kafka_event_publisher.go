package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/storefront/domain"

	"github.com/segmentio/kafka-go"
)

// KafkaEventPublisher 实现了 port.EventPublisher 接口, 以事件 Key 分区
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(writer *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

func (a *KafkaEventPublisher) Publish(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(event.Key), body,
		kafka.Header{Key: "event_type", Value: []byte(event.Type)})
}

// Close 关闭底层的Kafka writer。
func (a *KafkaEventPublisher) Close() error {
	return a.writer.Close()
}

// NoopPublisher 没有配置 Kafka 时使用, 只打调试日志
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event domain.Event) error {
	logEvent := logger.Ctx(ctx).Debug().Str("event_type", string(event.Type)).Str("key", event.Key)
	logEvent.Msg("event dropped, no broker configured")
	return nil
}
