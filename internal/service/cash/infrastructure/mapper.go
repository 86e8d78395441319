// internal/service/cash/infrastructure/mapper.go
package infrastructure

import (
	"encoding/json"

	"github.com/google/uuid"

	"cashkeyboard/internal/service/cash/domain"
)

// ToDomainCashAccount 将数据库模型转换为领域模型。
func ToDomainCashAccount(m *CashAccountModel) *domain.CashAccount {
	if m == nil {
		return nil
	}
	return &domain.CashAccount{
		ID:           uuid.MustParse(m.ID),
		UserID:       uuid.MustParse(m.UserID),
		Balance:      m.Balance,
		TotalEarned:  m.TotalEarned,
		TotalSpent:   m.TotalSpent,
		LastEarnedAt: m.LastEarnedAt,
		LastSpentAt:  m.LastSpentAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func FromDomainCashAccount(a *domain.CashAccount) *CashAccountModel {
	return &CashAccountModel{
		ID:           a.ID.String(),
		UserID:       a.UserID.String(),
		Balance:      a.Balance,
		TotalEarned:  a.TotalEarned,
		TotalSpent:   a.TotalSpent,
		LastEarnedAt: a.LastEarnedAt,
		LastSpentAt:  a.LastSpentAt,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func ToDomainCashTransaction(m *CashTransactionModel) *domain.CashTransaction {
	if m == nil {
		return nil
	}
	tx := &domain.CashTransaction{
		ID:           uuid.MustParse(m.ID),
		AccountID:    uuid.MustParse(m.AccountID),
		UserID:       uuid.MustParse(m.UserID),
		Type:         domain.TransactionType(m.Type),
		Amount:       m.Amount,
		BalanceAfter: m.BalanceAfter,
		Source:       domain.EarnSource(m.Source),
		Purpose:      domain.SpendPurpose(m.Purpose),
		TargetID:     m.TargetID,
		CreatedAt:    m.CreatedAt,
	}
	if m.SourceID != nil {
		tx.SourceID = *m.SourceID
	}
	if m.Metadata != "" {
		// 元数据损坏不应阻塞读路径，解析失败时按无元数据处理
		_ = json.Unmarshal([]byte(m.Metadata), &tx.Metadata)
	}
	return tx
}

func FromDomainCashTransaction(t *domain.CashTransaction) *CashTransactionModel {
	m := &CashTransactionModel{
		ID:           t.ID.String(),
		AccountID:    t.AccountID.String(),
		UserID:       t.UserID.String(),
		Type:         string(t.Type),
		Amount:       t.Amount,
		BalanceAfter: t.BalanceAfter,
		Source:       string(t.Source),
		Purpose:      string(t.Purpose),
		TargetID:     t.TargetID,
		CreatedAt:    t.CreatedAt,
	}
	if t.SourceID != "" {
		sid := t.SourceID
		m.SourceID = &sid
	}
	if len(t.Metadata) > 0 {
		if data, err := json.Marshal(t.Metadata); err == nil {
			m.Metadata = string(data)
		}
	}
	return m
}

func ToDomainDailyLimit(m *DailyLimitModel) *domain.DailyLimit {
	if m == nil {
		return nil
	}
	return &domain.DailyLimit{
		ID:                     uuid.MustParse(m.ID),
		UserID:                 uuid.MustParse(m.UserID),
		Date:                   m.Date,
		TodayEarned:            m.TodayEarned,
		TodayEarnedCount:       m.TodayEarnedCount,
		TodayRandomEarnedCount: m.TodayRandomEarnedCount,
		TodaySpent:             m.TodaySpent,
		LastEarnAt:             m.LastEarnAt,
		LastRandomEarnAt:       m.LastRandomEarnAt,
		LastSpendAt:            m.LastSpendAt,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

func FromDomainDailyLimit(d *domain.DailyLimit) *DailyLimitModel {
	return &DailyLimitModel{
		ID:                     d.ID.String(),
		UserID:                 d.UserID.String(),
		Date:                   d.Date,
		TodayEarned:            d.TodayEarned,
		TodayEarnedCount:       d.TodayEarnedCount,
		TodayRandomEarnedCount: d.TodayRandomEarnedCount,
		TodaySpent:             d.TodaySpent,
		LastEarnAt:             d.LastEarnAt,
		LastRandomEarnAt:       d.LastRandomEarnAt,
		LastSpendAt:            d.LastSpendAt,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}
