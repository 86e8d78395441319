package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"cashkeyboard/internal/pkg/mq"
	"cashkeyboard/internal/service/coupon/domain"
)

// CouponEventKafkaAdapter 实现了 domain.EventPublisher 接口。
// 事件以 userId 作 key 写入，同一用户的事件保持分区内有序。
type CouponEventKafkaAdapter struct {
	writer *kafka.Writer
}

// NewCouponEventKafkaAdapter 创建一个新的事件生产者适配器。
func NewCouponEventKafkaAdapter(writer *kafka.Writer) *CouponEventKafkaAdapter {
	return &CouponEventKafkaAdapter{writer: writer}
}

// PublishCouponEvent 实现了发布优惠券生命周期事件的逻辑。
func (a *CouponEventKafkaAdapter) PublishCouponEvent(ctx context.Context, event *domain.CouponEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal coupon event: %w", err)
	}

	// 调用通用的 mq.ProduceMessage，它会自动处理追踪上下文注入
	return mq.ProduceMessage(ctx, a.writer, []byte(event.UserID.String()), eventBytes)
}

// Close 关闭底层的 Kafka writer。
func (a *CouponEventKafkaAdapter) Close() error {
	return a.writer.Close()
}
