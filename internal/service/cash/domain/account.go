// internal/service/cash/domain/account.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// CashAccount 是积分账户聚合根，每个用户只有一行。
// 余额只允许通过 Earn / EarnRandom / Spend 三个方法变动，
// 每次成功的变动都产出恰好一条 CashTransaction。
type CashAccount struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Balance     int
	TotalEarned int
	TotalSpent  int

	LastEarnedAt *time.Time
	LastSpentAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCashAccount 创建一个零余额账户。
func NewCashAccount(userID uuid.UUID) *CashAccount {
	now := time.Now()
	return &CashAccount{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanSpend 检查余额是否足以支付 amount。
func (a *CashAccount) CanSpend(amount int) bool {
	return amount > 0 && a.Balance >= amount
}

// Earn 增加余额和累计收入，返回对应的流水。
func (a *CashAccount) Earn(amount int, now time.Time) (*CashTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	a.Balance += amount
	a.TotalEarned += amount
	a.LastEarnedAt = &now
	a.UpdatedAt = now

	return a.newTransaction(TransactionEarn, amount, now), nil
}

// EarnRandom 处理随机发放。amount 为 0 表示参与了但未中奖，
// 余额不变，但仍会生成一条 amount=0 的流水供调用方决定是否落库。
func (a *CashAccount) EarnRandom(amount int, source EarnSource, sourceID string, now time.Time) (*CashTransaction, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	if amount > 0 {
		a.Balance += amount
		a.TotalEarned += amount
		a.LastEarnedAt = &now
		a.UpdatedAt = now
	}

	tx := a.newTransaction(TransactionRandomEarn, amount, now)
	tx.Source = source
	tx.SourceID = sourceID
	return tx, nil
}

// Spend 扣减余额并累计支出。余额不足或金额非法时账户不发生任何变化。
func (a *CashAccount) Spend(amount int, purpose SpendPurpose, targetID string, now time.Time) (*CashTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if a.Balance < amount {
		return nil, ErrInsufficientBalance
	}

	a.Balance -= amount
	a.TotalSpent += amount
	a.LastSpentAt = &now
	a.UpdatedAt = now

	tx := a.newTransaction(TransactionSpend, amount, now)
	tx.Purpose = purpose
	tx.TargetID = targetID
	return tx, nil
}

func (a *CashAccount) newTransaction(txType TransactionType, amount int, now time.Time) *CashTransaction {
	return &CashTransaction{
		ID:           uuid.New(),
		AccountID:    a.ID,
		UserID:       a.UserID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: a.Balance,
		CreatedAt:    now,
	}
}
