// internal/service/cash/infrastructure/gorm_model.go
package infrastructure

import (
	"time"
)

// CashAccountModel 对应 cash_accounts 表，每个用户一行。
type CashAccountModel struct {
	ID          string `gorm:"type:char(36);primaryKey"`
	UserID      string `gorm:"type:char(36);uniqueIndex:uk_cash_accounts_user"`
	Balance     int    `gorm:"not null;default:0"`
	TotalEarned int    `gorm:"not null;default:0"`
	TotalSpent  int    `gorm:"not null;default:0"`

	LastEarnedAt *time.Time
	LastSpentAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CashAccountModel) TableName() string {
	return "cash_accounts"
}

// CashTransactionModel 对应 cash_transactions 表。
// (user_id, source_id) 上的唯一索引是幂等去重的最终裁决点；
// source_id 为 NULL 的行（SPEND、退款）不参与唯一性约束。
type CashTransactionModel struct {
	ID           string `gorm:"type:char(36);primaryKey"`
	AccountID    string `gorm:"type:char(36);index"`
	UserID       string `gorm:"type:char(36);index:idx_cash_tx_user_created;uniqueIndex:uk_cash_tx_user_source"`
	Type         string `gorm:"type:varchar(16);not null"`
	Amount       int    `gorm:"not null"`
	BalanceAfter int    `gorm:"not null"`

	Source   string  `gorm:"type:varchar(32)"`
	SourceID *string `gorm:"type:varchar(128);uniqueIndex:uk_cash_tx_user_source"`
	Purpose  string  `gorm:"type:varchar(32)"`
	TargetID string  `gorm:"type:varchar(128)"`

	Metadata string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"index:idx_cash_tx_user_created"`
}

func (CashTransactionModel) TableName() string {
	return "cash_transactions"
}

// DailyLimitModel 对应 daily_limits 表，(user_id, date) 唯一。
// 按日期分行让限额在日期翻转时自然归零。
type DailyLimitModel struct {
	ID     string `gorm:"type:char(36);primaryKey"`
	UserID string `gorm:"type:char(36);uniqueIndex:uk_daily_limits_user_date"`
	Date   string `gorm:"type:char(10);uniqueIndex:uk_daily_limits_user_date;index"`

	TodayEarned            int `gorm:"not null;default:0"`
	TodayEarnedCount       int `gorm:"not null;default:0"`
	TodayRandomEarnedCount int `gorm:"not null;default:0"`
	TodaySpent             int `gorm:"not null;default:0"`

	LastEarnAt       *time.Time
	LastRandomEarnAt *time.Time
	LastSpendAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DailyLimitModel) TableName() string {
	return "daily_limits"
}
