// internal/service/cash/domain/transaction.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType 定义了账本流水的类型。
type TransactionType string

const (
	TransactionEarn       TransactionType = "EARN"        // 确定性积分发放
	TransactionRandomEarn TransactionType = "RANDOM_EARN" // 随机积分发放
	TransactionSpend      TransactionType = "SPEND"       // 积分消耗
)

// EarnSource 是积分的来源渠道。
// sourceId 的幂等去重以 (userId, sourceId) 为粒度，与渠道无关。
type EarnSource string

const (
	SourceAdWatch         EarnSource = "AD_WATCH"
	SourceMissionComplete EarnSource = "MISSION_COMPLETE"
	SourceDailyBonus      EarnSource = "DAILY_BONUS"
	SourceReferral        EarnSource = "REFERRAL"
	SourceLuckySpin       EarnSource = "LUCKY_SPIN"
	SourceRandomReward    EarnSource = "RANDOM_REWARD"
	SourceSurpriseBonus   EarnSource = "SURPRISE_BONUS"
)

// SpendPurpose 是积分的消耗用途。
type SpendPurpose string

const (
	PurposeProductPurchase SpendPurpose = "PRODUCT_PURCHASE"
	PurposePremiumFeature  SpendPurpose = "PREMIUM_FEATURE"
	PurposeGift            SpendPurpose = "GIFT"
	PurposeCouponRefund    SpendPurpose = "COUPON_REFUND"
)

var validSources = map[EarnSource]struct{}{
	SourceAdWatch: {}, SourceMissionComplete: {}, SourceDailyBonus: {},
	SourceReferral: {}, SourceLuckySpin: {}, SourceRandomReward: {}, SourceSurpriseBonus: {},
}

var validPurposes = map[SpendPurpose]struct{}{
	PurposeProductPurchase: {}, PurposePremiumFeature: {}, PurposeGift: {}, PurposeCouponRefund: {},
}

// IsValid 校验来源是否为已知渠道。
func (s EarnSource) IsValid() bool {
	_, ok := validSources[s]
	return ok
}

func (p SpendPurpose) IsValid() bool {
	_, ok := validPurposes[p]
	return ok
}

// CashTransaction 是 append-only 的账本流水。
// 创建之后不允许修改或删除，balanceAfter 是提交时刻的余额快照。
type CashTransaction struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	UserID       uuid.UUID
	Type         TransactionType
	Amount       int
	BalanceAfter int

	// 发放来源与幂等键，仅 EARN / RANDOM_EARN 使用
	Source   EarnSource
	SourceID string

	// 消耗用途与目标，仅 SPEND 使用
	Purpose  SpendPurpose
	TargetID string

	Metadata  map[string]string
	CreatedAt time.Time
}

func (t *CashTransaction) IsEarnTransaction() bool {
	return t.Type == TransactionEarn || t.Type == TransactionRandomEarn
}

func (t *CashTransaction) IsSpendTransaction() bool {
	return t.Type == TransactionSpend
}
