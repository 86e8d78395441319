package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCanEarn_AmountBoundary(t *testing.T) {
	limit := NewDailyLimit(uuid.New(), "2026-08-30")
	limit.TodayEarned = MaxDailyEarn - 100

	if !limit.CanEarn(100) {
		t.Errorf("expected earn of exactly remaining amount to be allowed")
	}
	if limit.CanEarn(101) {
		t.Errorf("expected earn exceeding daily cap to be rejected")
	}
}

func TestCanEarn_CountBoundary(t *testing.T) {
	limit := NewDailyLimit(uuid.New(), "2026-08-30")
	limit.TodayEarnedCount = MaxDailyEarnCount - 1

	if !limit.CanEarn(1) {
		t.Errorf("expected earn at count %d to be allowed", MaxDailyEarnCount-1)
	}

	limit.TodayEarnedCount = MaxDailyEarnCount
	if limit.CanEarn(1) {
		t.Errorf("expected earn at max count to be rejected")
	}
}

func TestCanRandomEarn(t *testing.T) {
	limit := NewDailyLimit(uuid.New(), "2026-08-30")

	for i := 0; i < MaxRandomEarnCount; i++ {
		if !limit.CanRandomEarn() {
			t.Fatalf("attempt %d unexpectedly rejected", i)
		}
		if err := limit.RecordRandomEarn(time.Now()); err != nil {
			t.Fatalf("RecordRandomEarn failed: %v", err)
		}
	}
	if limit.CanRandomEarn() {
		t.Errorf("expected random earn to be rejected after %d attempts", MaxRandomEarnCount)
	}
}

func TestRecordEarn_RejectsInvariantViolation(t *testing.T) {
	limit := NewDailyLimit(uuid.New(), "2026-08-30")
	limit.TodayEarned = MaxDailyEarn

	if err := limit.RecordEarn(1, time.Now()); err == nil {
		t.Errorf("expected RecordEarn over cap to fail")
	}
	if limit.TodayEarned != MaxDailyEarn || limit.TodayEarnedCount != 0 {
		t.Errorf("failed RecordEarn must not mutate counters, got earned=%d count=%d",
			limit.TodayEarned, limit.TodayEarnedCount)
	}
}

func TestRateLimits(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		last    time.Duration // time since last action
		window  time.Duration
		limited bool
	}{
		{"inside window", 10 * time.Second, EarnRateLimit, true},
		{"exactly at window", EarnRateLimit, EarnRateLimit, false},
		{"past window", 2 * time.Minute, EarnRateLimit, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit := NewDailyLimit(uuid.New(), DateKey(now))
			last := now.Add(-tt.last)
			limit.LastEarnAt = &last
			limit.LastRandomEarnAt = &last

			if got := limit.IsEarnRateLimited(now); got != tt.limited {
				t.Errorf("IsEarnRateLimited = %v, want %v", got, tt.limited)
			}
			if got := limit.IsRandomEarnRateLimited(now); got != tt.limited {
				t.Errorf("IsRandomEarnRateLimited = %v, want %v", got, tt.limited)
			}
		})
	}
}

func TestSpendRateLimit(t *testing.T) {
	now := time.Now()
	limit := NewDailyLimit(uuid.New(), DateKey(now))

	if limit.IsSpendRateLimited(now) {
		t.Errorf("fresh limit should not be spend rate limited")
	}

	limit.RecordSpend(100, now)
	if !limit.IsSpendRateLimited(now.Add(10 * time.Second)) {
		t.Errorf("expected spend rate limit inside %v window", SpendRateLimit)
	}
	if limit.IsSpendRateLimited(now.Add(SpendRateLimit)) {
		t.Errorf("expected spend allowed after window elapsed")
	}
}

func TestRemainingCounters(t *testing.T) {
	limit := NewDailyLimit(uuid.New(), "2026-08-30")
	limit.TodayEarned = 300
	limit.TodayEarnedCount = 5
	limit.TodayRandomEarnedCount = 10

	if got := limit.RemainingEarnLimit(); got != MaxDailyEarn-300 {
		t.Errorf("RemainingEarnLimit = %d, want %d", got, MaxDailyEarn-300)
	}
	if got := limit.RemainingEarnCount(); got != MaxDailyEarnCount-5 {
		t.Errorf("RemainingEarnCount = %d, want %d", got, MaxDailyEarnCount-5)
	}
	if got := limit.RemainingRandomEarnCount(); got != 0 {
		t.Errorf("RemainingRandomEarnCount = %d, want 0", got)
	}

	// counters never go negative even if data exceeds limits
	limit.TodayEarned = MaxDailyEarn + 500
	if got := limit.RemainingEarnLimit(); got != 0 {
		t.Errorf("RemainingEarnLimit = %d, want 0 for over-limit row", got)
	}
}

func TestDateKey(t *testing.T) {
	ts := time.Date(2026, 8, 30, 23, 59, 0, 0, time.Local)
	if got := DateKey(ts); got != "2026-08-30" {
		t.Errorf("DateKey = %q, want 2026-08-30", got)
	}
}
