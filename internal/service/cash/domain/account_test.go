package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEarn(t *testing.T) {
	account := NewCashAccount(uuid.New())
	now := time.Now()

	tx, err := account.Earn(100, now)
	if err != nil {
		t.Fatalf("Earn failed: %v", err)
	}

	if account.Balance != 100 || account.TotalEarned != 100 {
		t.Errorf("balance=%d totalEarned=%d, want 100/100", account.Balance, account.TotalEarned)
	}
	if tx.Type != TransactionEarn || tx.Amount != 100 || tx.BalanceAfter != 100 {
		t.Errorf("unexpected transaction: %+v", tx)
	}
	if tx.UserID != account.UserID || tx.AccountID != account.ID {
		t.Errorf("transaction not linked to account")
	}
}

func TestEarn_RejectsNonPositiveAmount(t *testing.T) {
	account := NewCashAccount(uuid.New())

	for _, amount := range []int{0, -1, -100} {
		if _, err := account.Earn(amount, time.Now()); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Earn(%d) = %v, want ErrInvalidAmount", amount, err)
		}
	}
	if account.Balance != 0 {
		t.Errorf("failed earn must not change balance, got %d", account.Balance)
	}
}

func TestEarnRandom_LossKeepsBalance(t *testing.T) {
	account := NewCashAccount(uuid.New())
	now := time.Now()

	tx, err := account.EarnRandom(0, SourceLuckySpin, "spin-1", now)
	if err != nil {
		t.Fatalf("EarnRandom failed: %v", err)
	}

	if account.Balance != 0 || account.TotalEarned != 0 {
		t.Errorf("losing attempt must not change balance, got balance=%d", account.Balance)
	}
	if account.LastEarnedAt != nil {
		t.Errorf("losing attempt must not touch lastEarnedAt")
	}
	if tx.Amount != 0 || tx.Type != TransactionRandomEarn {
		t.Errorf("unexpected transaction: %+v", tx)
	}
}

func TestSpend(t *testing.T) {
	account := NewCashAccount(uuid.New())
	now := time.Now()
	if _, err := account.Earn(200, now); err != nil {
		t.Fatalf("setup earn failed: %v", err)
	}

	tx, err := account.Spend(150, PurposeProductPurchase, "product-1", now)
	if err != nil {
		t.Fatalf("Spend failed: %v", err)
	}

	if account.Balance != 50 || account.TotalSpent != 150 {
		t.Errorf("balance=%d totalSpent=%d, want 50/150", account.Balance, account.TotalSpent)
	}
	if tx.Type != TransactionSpend || tx.BalanceAfter != 50 || tx.TargetID != "product-1" {
		t.Errorf("unexpected transaction: %+v", tx)
	}
}

func TestSpend_InsufficientBalance(t *testing.T) {
	account := NewCashAccount(uuid.New())
	now := time.Now()
	if _, err := account.Earn(100, now); err != nil {
		t.Fatalf("setup earn failed: %v", err)
	}

	if _, err := account.Spend(101, PurposeGift, "u2", now); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Spend over balance = %v, want ErrInsufficientBalance", err)
	}
	if account.Balance != 100 || account.TotalSpent != 0 {
		t.Errorf("failed spend must not mutate account, got balance=%d spent=%d",
			account.Balance, account.TotalSpent)
	}
}

// Balance always equals earned minus spent across any operation sequence.
func TestBalanceInvariant(t *testing.T) {
	account := NewCashAccount(uuid.New())
	now := time.Now()

	ops := []struct {
		earn  int
		spend int
	}{
		{100, 0}, {500, 200}, {50, 300}, {1000, 1000},
	}

	for _, op := range ops {
		if op.earn > 0 {
			if _, err := account.Earn(op.earn, now); err != nil {
				t.Fatalf("earn %d failed: %v", op.earn, err)
			}
		}
		if op.spend > 0 {
			if _, err := account.Spend(op.spend, PurposePremiumFeature, "", now); err != nil {
				t.Fatalf("spend %d failed: %v", op.spend, err)
			}
		}
		if account.Balance != account.TotalEarned-account.TotalSpent {
			t.Fatalf("invariant broken: balance=%d earned=%d spent=%d",
				account.Balance, account.TotalEarned, account.TotalSpent)
		}
	}
}
