// internal/service/cash/application/dto.go
package application

import (
	"time"

	"github.com/google/uuid"

	"cashkeyboard/internal/service/cash/domain"
)

// EarnCashCommand 是一次确定性发放请求。
type EarnCashCommand struct {
	UserID   uuid.UUID         `json:"userId"`
	Amount   int               `json:"amount"`
	Source   domain.EarnSource `json:"source"`
	SourceID string            `json:"sourceId"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DailyStatus 是发放后的当日额度快照。
type DailyStatus struct {
	TodayEarned              int `json:"todayEarned"`
	RemainingEarnLimit       int `json:"remainingEarnLimit"`
	TodayEarnedCount         int `json:"todayEarnedCount"`
	RemainingRandomEarnCount int `json:"remainingRandomEarnCount"`
}

type EarnCashResult struct {
	TransactionID uuid.UUID   `json:"transactionId"`
	EarnedAmount  int         `json:"earnedAmount"`
	NewBalance    int         `json:"newBalance"`
	DailyStatus   DailyStatus `json:"dailyStatus"`
	Timestamp     time.Time   `json:"timestamp"`
}

// RandomEarnCashCommand 是一次抽奖请求，金额由奖励引擎决定。
type RandomEarnCashCommand struct {
	UserID   uuid.UUID         `json:"userId"`
	Source   domain.EarnSource `json:"source"`
	SourceID string            `json:"sourceId"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type RandomEarnDetail struct {
	WinRate         float64           `json:"winRate"`
	Tier            domain.RewardTier `json:"tier"`
	PossibleAmounts []int             `json:"possibleAmounts"`
}

type RandomEarnDailyStatus struct {
	TodayRandomEarnedCount   int `json:"todayRandomEarnedCount"`
	RemainingRandomEarnCount int `json:"remainingRandomEarnCount"`
}

type RandomEarnCashResult struct {
	// TransactionID 未中奖时为 nil：落败的尝试不产生账本流水
	TransactionID *uuid.UUID            `json:"transactionId,omitempty"`
	IsWinner      bool                  `json:"isWinner"`
	EarnedAmount  int                   `json:"earnedAmount"`
	NewBalance    int                   `json:"newBalance"`
	RandomResult  RandomEarnDetail      `json:"randomResult"`
	DailyStatus   RandomEarnDailyStatus `json:"dailyStatus"`
	Timestamp     time.Time             `json:"timestamp"`
}

// SpendCashCommand 是一次积分消耗请求。
type SpendCashCommand struct {
	UserID   uuid.UUID           `json:"userId"`
	Amount   int                 `json:"amount"`
	Purpose  domain.SpendPurpose `json:"purpose"`
	TargetID string              `json:"targetId"`
	Metadata map[string]string   `json:"metadata,omitempty"`
}

type SpendCashResult struct {
	TransactionID uuid.UUID `json:"transactionId"`
	SpentAmount   int       `json:"spentAmount"`
	NewBalance    int       `json:"newBalance"`
	Timestamp     time.Time `json:"timestamp"`
}

// CashAccountDTO 是账户查询的响应。
type CashAccountDTO struct {
	AccountID    uuid.UUID  `json:"accountId"`
	UserID       uuid.UUID  `json:"userId"`
	Balance      int        `json:"balance"`
	TotalEarned  int        `json:"totalEarned"`
	TotalSpent   int        `json:"totalSpent"`
	LastEarnedAt *time.Time `json:"lastEarnedAt,omitempty"`
	LastSpentAt  *time.Time `json:"lastSpentAt,omitempty"`
}

// DailyLimitsDTO 是当日额度查询的响应，读取缺行时返回零值额度。
type DailyLimitsDTO struct {
	UserID                   uuid.UUID `json:"userId"`
	Date                     string    `json:"date"`
	MaxDailyEarn             int       `json:"maxDailyEarn"`
	TodayEarned              int       `json:"todayEarned"`
	RemainingEarnLimit       int       `json:"remainingEarnLimit"`
	MaxDailyEarnCount        int       `json:"maxDailyEarnCount"`
	TodayEarnedCount         int       `json:"todayEarnedCount"`
	RemainingEarnCount       int       `json:"remainingEarnCount"`
	MaxRandomEarnCount       int       `json:"maxRandomEarnCount"`
	TodayRandomEarnedCount   int       `json:"todayRandomEarnedCount"`
	RemainingRandomEarnCount int       `json:"remainingRandomEarnCount"`
}

// TransactionPage 是流水分页查询结果。
type TransactionPage struct {
	Items []*domain.CashTransaction `json:"items"`
	Total int64                     `json:"total"`
}

// DailyActivityDTO 是活动摘要里单日的发放/消耗快照，
// 直接取自当天的计数器行。
type DailyActivityDTO struct {
	Date            string `json:"date"`
	EarnedAmount    int    `json:"earnedAmount"`
	EarnedCount     int    `json:"earnedCount"`
	RandomEarnCount int    `json:"randomEarnCount"`
	SpentAmount     int    `json:"spentAmount"`
}

// ActivitySummaryDTO 是日期区间内的账户活动摘要。
// 总量从账本流水聚合，逐日明细来自计数器行。
type ActivitySummaryDTO struct {
	UserID          uuid.UUID          `json:"userId"`
	StartDate       string             `json:"startDate"`
	EndDate         string             `json:"endDate"`
	TotalEarned     int                `json:"totalEarned"`
	TotalSpent      int                `json:"totalSpent"`
	EarnCount       int64              `json:"earnCount"`
	RandomEarnCount int64              `json:"randomEarnCount"`
	SpendCount      int64              `json:"spendCount"`
	Days            []DailyActivityDTO `json:"days"`
}
