// internal/service/coupon/domain/event.go
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CouponEventType 是对下游广播的逻辑事件类型。
type CouponEventType string

const (
	EventCouponIssued    CouponEventType = "COUPON_ISSUED"
	EventCouponUsed      CouponEventType = "COUPON_USED"
	EventCouponCancelled CouponEventType = "COUPON_CANCELLED"
	EventCouponRefunded  CouponEventType = "COUPON_REFUNDED"
	EventCouponExpired   CouponEventType = "COUPON_EXPIRED"
	// EventCouponExpiringSoon 是到期前的提醒事件，下游按 (couponId, 提醒日) 去重
	EventCouponExpiringSoon CouponEventType = "COUPON_EXPIRING_SOON"
)

// CouponEvent 是核心对外发布的生命周期事件。
// 推送、站内信等投递机制是下游消费者的职责，核心只负责发出。
type CouponEvent struct {
	CouponID   uuid.UUID         `json:"couponId"`
	UserID     uuid.UUID         `json:"userId"`
	Type       CouponEventType   `json:"type"`
	Payload    map[string]string `json:"payload,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// EventPublisher 是事件出口的端口。
// 发布失败只记日志，不回滚已提交的业务事务。
type EventPublisher interface {
	PublishCouponEvent(ctx context.Context, event *CouponEvent) error
}
