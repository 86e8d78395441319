// internal/service/cash/domain/port.go
package domain

import (
	"context"

	"github.com/google/uuid"
)

// SourceGuard 是幂等键的快速去重通道。
// 它只是性能优化：最终裁决永远是流水表上的唯一索引，
// guard 丢数据（重启、过期）只会让请求多走一次数据库预检。
type SourceGuard interface {
	// PriorTransaction 返回已处理过该 sourceId 的流水 ID。
	// 未处理过时返回 uuid.Nil。
	PriorTransaction(ctx context.Context, userID uuid.UUID, sourceID string) (uuid.UUID, error)
	// Remember 在流水提交成功后登记 sourceId。未中奖的抽奖不登记，
	// 因为它没有产生流水，同一 sourceId 允许再次尝试。
	Remember(ctx context.Context, userID uuid.UUID, sourceID string, transactionID uuid.UUID) error
}

// EarnFact 是风控规则的评估输入。
type EarnFact struct {
	UserID   string
	Source   string
	Amount   int
	Metadata map[string]string
}

// FraudChecker 在任何账本变动前评估发放请求。
// 拒绝时返回 ErrFraudSuspected（或其包装）。
type FraudChecker interface {
	Validate(ctx context.Context, fact EarnFact) error
}
