package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"cashkeyboard/internal/service/cash/domain"
)

// --- in-memory fakes ---

type fakeStore struct {
	accounts map[uuid.UUID]*domain.CashAccount
	txs      []*domain.CashTransaction
	limits   map[string]*domain.DailyLimit
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[uuid.UUID]*domain.CashAccount),
		limits:   make(map[string]*domain.DailyLimit),
	}
}

func limitKey(userID uuid.UUID, date string) string {
	return userID.String() + "/" + date
}

type fakeAccountRepo struct{ s *fakeStore }

func (r *fakeAccountRepo) FindByUserID(_ context.Context, userID uuid.UUID) (*domain.CashAccount, error) {
	if a, ok := r.s.accounts[userID]; ok {
		return a, nil
	}
	return nil, domain.ErrAccountNotFound
}

func (r *fakeAccountRepo) FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*domain.CashAccount, error) {
	return r.FindByUserID(ctx, userID)
}

func (r *fakeAccountRepo) Save(_ context.Context, account *domain.CashAccount) error {
	r.s.accounts[account.UserID] = account
	return nil
}

func (r *fakeAccountRepo) TotalCashInSystem(_ context.Context) (int64, error) {
	var total int64
	for _, a := range r.s.accounts {
		total += int64(a.Balance)
	}
	return total, nil
}

type fakeTxRepo struct{ s *fakeStore }

func (r *fakeTxRepo) FindByUserAndSourceID(_ context.Context, userID uuid.UUID, sourceID string) (*domain.CashTransaction, error) {
	for _, tx := range r.s.txs {
		if tx.UserID == userID && tx.SourceID == sourceID && sourceID != "" {
			return tx, nil
		}
	}
	return nil, nil
}

func (r *fakeTxRepo) Save(ctx context.Context, tx *domain.CashTransaction) error {
	if tx.SourceID != "" {
		if prior, _ := r.FindByUserAndSourceID(ctx, tx.UserID, tx.SourceID); prior != nil {
			return &domain.DuplicateSourceIDError{SourceID: tx.SourceID, PreviousTransactionID: prior.ID}
		}
	}
	r.s.txs = append(r.s.txs, tx)
	return nil
}

func (r *fakeTxRepo) ListByUser(_ context.Context, userID uuid.UUID, filter domain.TransactionFilter) ([]*domain.CashTransaction, int64, error) {
	var items []*domain.CashTransaction
	for _, tx := range r.s.txs {
		if tx.UserID != userID {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		items = append(items, tx)
	}
	return items, int64(len(items)), nil
}

func (r *fakeTxRepo) SumAmountByTypes(_ context.Context, userID uuid.UUID, types []domain.TransactionType, _, _ time.Time) (int, error) {
	var total int
	for _, tx := range r.s.txs {
		if tx.UserID != userID {
			continue
		}
		for _, typ := range types {
			if tx.Type == typ {
				total += tx.Amount
			}
		}
	}
	return total, nil
}

func (r *fakeTxRepo) CountByType(_ context.Context, userID uuid.UUID, txType domain.TransactionType, _, _ time.Time) (int64, error) {
	var count int64
	for _, tx := range r.s.txs {
		if tx.UserID == userID && tx.Type == txType {
			count++
		}
	}
	return count, nil
}

type fakeLimitRepo struct{ s *fakeStore }

func (r *fakeLimitRepo) FindByUserAndDate(_ context.Context, userID uuid.UUID, date string) (*domain.DailyLimit, error) {
	return r.s.limits[limitKey(userID, date)], nil
}

func (r *fakeLimitRepo) FindByUserAndDateForUpdate(ctx context.Context, userID uuid.UUID, date string) (*domain.DailyLimit, error) {
	return r.FindByUserAndDate(ctx, userID, date)
}

func (r *fakeLimitRepo) Save(_ context.Context, limit *domain.DailyLimit) error {
	r.s.limits[limitKey(limit.UserID, limit.Date)] = limit
	return nil
}

func (r *fakeLimitRepo) ListByUserAndDateRange(_ context.Context, userID uuid.UUID, startDate, endDate string) ([]*domain.DailyLimit, error) {
	var items []*domain.DailyLimit
	for _, l := range r.s.limits {
		if l.UserID == userID && l.Date >= startDate && l.Date <= endDate {
			items = append(items, l)
		}
	}
	return items, nil
}

func (r *fakeLimitRepo) DeleteOlderThan(_ context.Context, cutoffDate string) (int64, error) {
	var deleted int64
	for k, l := range r.s.limits {
		if l.Date < cutoffDate {
			delete(r.s.limits, k)
			deleted++
		}
	}
	return deleted, nil
}

type fakeUow struct{ s *fakeStore }

func (u *fakeUow) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return fn(ctx, domain.Repositories{
		Accounts:     &fakeAccountRepo{s: u.s},
		Transactions: &fakeTxRepo{s: u.s},
		DailyLimits:  &fakeLimitRepo{s: u.s},
	})
}

type fakeGuard struct {
	remembered map[string]uuid.UUID
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{remembered: make(map[string]uuid.UUID)}
}

func (g *fakeGuard) PriorTransaction(_ context.Context, userID uuid.UUID, sourceID string) (uuid.UUID, error) {
	return g.remembered[limitKey(userID, sourceID)], nil
}

func (g *fakeGuard) Remember(_ context.Context, userID uuid.UUID, sourceID string, txID uuid.UUID) error {
	g.remembered[limitKey(userID, sourceID)] = txID
	return nil
}

type allowAllFraud struct{}

func (allowAllFraud) Validate(context.Context, domain.EarnFact) error { return nil }

type rejectAllFraud struct{}

func (rejectAllFraud) Validate(context.Context, domain.EarnFact) error {
	return domain.ErrFraudSuspected
}

// --- helpers ---

func newTestService(t *testing.T, store *fakeStore, guard domain.SourceGuard, fraud domain.FraudChecker, randFloats ...float64) *CashService {
	t.Helper()
	engine := domain.NewRewardEngine()
	if len(randFloats) > 0 {
		i := 0
		engine = domain.NewRewardEngineWithRand(func() float64 {
			v := randFloats[i]
			if i < len(randFloats)-1 {
				i++
			}
			return v
		})
	}
	return NewCashService(&fakeUow{s: store}, guard, fraud, engine, otel.Tracer("test"))
}

func mustCreateAccount(t *testing.T, svc *CashService, userID uuid.UUID) {
	t.Helper()
	if _, err := svc.CreateAccount(context.Background(), userID); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
}

// --- tests ---

func TestCreateAccount_Idempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeGuard(), allowAllFraud{})
	userID := uuid.New()

	first, err := svc.CreateAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	second, err := svc.CreateAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("repeated CreateAccount failed: %v", err)
	}
	if first.AccountID != second.AccountID {
		t.Errorf("repeated create returned a different account: %s vs %s", first.AccountID, second.AccountID)
	}
	if len(store.accounts) != 1 {
		t.Errorf("expected exactly one account, got %d", len(store.accounts))
	}
}

func TestEarn(t *testing.T) {
	store := newFakeStore()
	guard := newFakeGuard()
	svc := newTestService(t, store, guard, allowAllFraud{})
	userID := uuid.New()
	mustCreateAccount(t, svc, userID)

	result, err := svc.Earn(context.Background(), EarnCashCommand{
		UserID:   userID,
		Amount:   100,
		Source:   domain.SourceDailyBonus,
		SourceID: "bonus-1",
	})
	if err != nil {
		t.Fatalf("Earn failed: %v", err)
	}

	if result.NewBalance != 100 || result.EarnedAmount != 100 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.DailyStatus.TodayEarned != 100 || result.DailyStatus.RemainingEarnLimit != domain.MaxDailyEarn-100 {
		t.Errorf("unexpected daily status: %+v", result.DailyStatus)
	}
	if len(store.txs) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(store.txs))
	}
	if guard.remembered[limitKey(userID, "bonus-1")] != result.TransactionID {
		t.Errorf("source guard not updated with committed transaction id")
	}
}

func TestEarn_DuplicateSourceID(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeGuard(), allowAllFraud{})
	userID := uuid.New()
	mustCreateAccount(t, svc, userID)

	first, err := svc.Earn(context.Background(), EarnCashCommand{
		UserID: userID, Amount: 100, Source: domain.SourceAdWatch, SourceID: "ad-1",
	})
	if err != nil {
		t.Fatalf("first Earn failed: %v", err)
	}

	_, err = svc.Earn(context.Background(), EarnCashCommand{
		UserID: userID, Amount: 100, Source: domain.SourceAdWatch, SourceID: "ad-1",
	})
	if !errors.Is(err, domain.ErrDuplicateSourceID) {
		t.Fatalf("duplicate Earn = %v, want ErrDuplicateSourceID", err)
	}

	var dup *domain.DuplicateSourceIDError
	if !errors.As(err, &dup) {
		t.Fatalf("expected *DuplicateSourceIDError, got %T", err)
	}
	if dup.PreviousTransactionID != first.TransactionID {
		t.Errorf("duplicate error references %s, want winner %s", dup.PreviousTransactionID, first.TransactionID)
	}

	if store.accounts[userID].Balance != 100 {
		t.Errorf("duplicate must not change balance, got %d", store.accounts[userID].Balance)
	}
	if len(store.txs) != 1 {
		t.Errorf("duplicate must not create a ledger row, got %d rows", len(store.txs))
	}
}

func TestEarn_DailyLimitExceeded(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeGuard(), allowAllFraud{})
	userID := uuid.New()
	mustCreateAccount(t, svc, userID)

	_, err := svc.Earn(context.Background(), EarnCashCommand{
		UserID: userID, Amount: domain.MaxDailyEarn + 1, Source: domain.SourceMissionComplete, SourceID: "m-1",
	})
	if !errors.Is(err, domain.ErrDailyLimitExceeded) {
		t.Fatalf("Earn over cap = %v, want ErrDailyLimitExceeded", err)
	}
	if len(store.txs) != 0 {
		t.Errorf("rejected earn must not create ledger rows")
	}
}

func TestEarn_RateLimited(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeGuard(), allowAllFraud{})
	userID := uuid.New()
	mustCreateAccount(t, svc, userID)

	if _, err := svc.Earn(context.Background(), EarnCashCommand{
		UserID: userID, Amount: 100, Source: domain.SourceAdWatch, SourceID: "ad-1",
	}); err != nil {
		t.Fatalf("first Earn failed: %v", err)
	}

	_, err := svc.Earn(context.Background(), EarnCashCommand{
		UserID: userID, Amount: 100, Source: domain.SourceAdWatch, SourceID: "ad-2",
	})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("immediate second Earn = %v, want ErrRateLimited", err)
	}

	var rl *domain.RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitedError, got %T", err)
	}
	if rl.RetryAfter <= 0 || rl.RetryAfter > domain.EarnRateLimit {
		t.Errorf("RetryAfter = %v, want within (0, %v]", rl.RetryAfter, domain.EarnRateLimit)
	}
}

func TestEarn_FraudRejected(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeGuard(), rejectAllFraud{})
	userID := uuid.New()
	mustCreateAccount(t, svc, userID)

	_, err := svc.Earn(context.Background(), EarnCashCommand{
		UserID: userID, Amount: 100, Source: domain.SourceAdWatch, SourceID: "ad-1",
	})
	if !errors.Is(err, domain.ErrFraudSuspected) {
		t.Fatalf("Earn with fraud checker rejecting = %v, want ErrFraudSuspected", err)
	}
	if len(store.txs) != 0 {
		t.Errorf("fraud rejection must precede any mutation")
	}
}

func TestEarn_Validation(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeGuard(), allowAllFraud{})
	userID := uuid.New()

	tests := []struct {
		name    string
		cmd     EarnCashCommand
		wantErr error
	}{
		{"zero amount", EarnCashCommand{UserID: userID, Amount: 0, Source: domain.SourceAdWatch, SourceID: "s"}, domain.ErrInvalidAmount},
		{"bad source", EarnCashCommand{UserID: userID, Amount: 10, Source: "HACKED", SourceID: "s"}, domain.ErrInvalidSource},
		{"missing source id", EarnCashCommand{UserID: userID, Amount: 10, Source: domain.SourceAdWatch}, domain.ErrMissingSourceID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Earn(context.Background(), tt.cmd); !errors.Is(err, tt.wantErr) {
				t.Errorf("Earn = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRandomEarn_Loss(t *testing.T) {
	store := newFakeStore()
	guard := newFakeGuard()
	// 0.99 >= every win rate -> guaranteed loss
	svc := newTestService(t, store, guard, allowAllFraud{}, 0.99)
	userID := uuid.New()
	mustCreateAccount(t, svc, userID)

	result, err := svc.RandomEarn(context.Background(), RandomEarnCashCommand{
		UserID: userID, Source: domain.SourceLuckySpin, SourceID: "spin-1",
	})
	if err != nil {
		t.Fatalf("RandomEarn failed: %v", err)
	}

	if result.IsWinner || result.EarnedAmount != 0 || result.TransactionID != nil {
		t.Errorf("unexpected loss result: %+v", result)
	}
	if len(store.txs) != 0 {
		t.Errorf("losing attempt must not create a ledger row")
	}
	if result.DailyStatus.TodayRandomEarnedCount != 1 {
		t.Errorf("losing attempt must still consume an attempt, got %d", result.DailyStatus.TodayRandomEarnedCount)
	}
	if len(guard.remembered) != 0 {
		t.Errorf("losing attempt must not claim the source id")
	}
}

func TestRandomEarn_Win(t *testing.T) {
	store := newFakeStore()
	guard := newFakeGuard()
	// win roll then mid tier
	svc := newTestService(t, store, guard, allowAllFraud{}, 0.0, 0.5)
	userID := uuid.New()
	mustCreateAccount(t, svc, userID)

	result, err := svc.RandomEarn(context.Background(), RandomEarnCashCommand{
		UserID: userID, Source: domain.SourceLuckySpin, SourceID: "spin-1",
	})
	if err != nil {
		t.Fatalf("RandomEarn failed: %v", err)
	}

	if !result.IsWinner || result.EarnedAmount == 0 || result.TransactionID == nil {
		t.Fatalf("unexpected win result: %+v", result)
	}
	if result.NewBalance != result.EarnedAmount {
		t.Errorf("balance = %d, want %d", result.NewBalance, result.EarnedAmount)
	}
	if len(store.txs) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(store.txs))
	}
	tx := store.txs[0]
	if tx.Type != domain.TransactionRandomEarn || tx.SourceID != "spin-1" {
		t.Errorf("unexpected transaction: %+v", tx)
	}
	if tx.Metadata["tier"] == "" || tx.Metadata["winRate"] == "" {
		t.Errorf("win transaction must carry reward metadata, got %v", tx.Metadata)
	}
	if guard.remembered[limitKey(userID, "spin-1")] != *result.TransactionID {
		t.Errorf("winning attempt must claim the source id")
	}
}

func TestSpend(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeGuard(), allowAllFraud{})
	userID := uuid.New()
	mustCreateAccount(t, svc, userID)

	if _, err := svc.Earn(context.Background(), EarnCashCommand{
		UserID: userID, Amount: 500, Source: domain.SourceDailyBonus, SourceID: "b-1",
	}); err != nil {
		t.Fatalf("setup earn failed: %v", err)
	}

	result, err := svc.Spend(context.Background(), SpendCashCommand{
		UserID: userID, Amount: 300, Purpose: domain.PurposePremiumFeature, TargetID: "theme-1",
	})
	if err != nil {
		t.Fatalf("Spend failed: %v", err)
	}
	if result.NewBalance != 200 {
		t.Errorf("balance = %d, want 200", result.NewBalance)
	}

	// balance is checked before the cooldown window
	_, err = svc.Spend(context.Background(), SpendCashCommand{
		UserID: userID, Amount: 201, Purpose: domain.PurposeGift, TargetID: "u2",
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("over-balance Spend = %v, want ErrInsufficientBalance", err)
	}
}

func TestGetDailyLimits_ReadOrZero(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeGuard(), allowAllFraud{})
	userID := uuid.New()

	dto, err := svc.GetDailyLimits(context.Background(), userID, "2026-08-30")
	if err != nil {
		t.Fatalf("GetDailyLimits failed: %v", err)
	}
	if dto.TodayEarned != 0 || dto.RemainingEarnLimit != domain.MaxDailyEarn {
		t.Errorf("unexpected zero-value limits: %+v", dto)
	}
	if len(store.limits) != 0 {
		t.Errorf("read path must never insert a limit row")
	}
}

func TestPurgeOldDailyLimits(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeGuard(), allowAllFraud{})
	userID := uuid.New()

	old := domain.NewDailyLimit(userID, "2020-01-01")
	recent := domain.NewDailyLimit(userID, domain.DateKey(time.Now()))
	store.limits[limitKey(userID, old.Date)] = old
	store.limits[limitKey(userID, recent.Date)] = recent

	deleted, err := svc.PurgeOldDailyLimits(context.Background(), 90)
	if err != nil {
		t.Fatalf("PurgeOldDailyLimits failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, ok := store.limits[limitKey(userID, recent.Date)]; !ok {
		t.Errorf("recent row must survive the purge")
	}
}

func TestGetActivitySummary(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeGuard(), allowAllFraud{})
	userID := uuid.New()
	mustCreateAccount(t, svc, userID)

	if _, err := svc.Earn(context.Background(), EarnCashCommand{
		UserID: userID, Amount: 100, Source: domain.SourceDailyBonus, SourceID: "bonus-1",
	}); err != nil {
		t.Fatalf("Earn failed: %v", err)
	}
	if _, err := svc.Spend(context.Background(), SpendCashCommand{
		UserID: userID, Amount: 40, Purpose: domain.PurposeProductPurchase, TargetID: "prod-1",
	}); err != nil {
		t.Fatalf("Spend failed: %v", err)
	}

	today := domain.DateKey(time.Now())
	summary, err := svc.GetActivitySummary(context.Background(), userID, today, today)
	if err != nil {
		t.Fatalf("GetActivitySummary failed: %v", err)
	}

	if summary.TotalEarned != 100 || summary.TotalSpent != 40 {
		t.Errorf("earned=%d spent=%d, want 100/40", summary.TotalEarned, summary.TotalSpent)
	}
	if summary.EarnCount != 1 || summary.SpendCount != 1 || summary.RandomEarnCount != 0 {
		t.Errorf("unexpected counts: %+v", summary)
	}
	if len(summary.Days) != 1 {
		t.Fatalf("expected one daily row, got %d", len(summary.Days))
	}
	day := summary.Days[0]
	if day.Date != today || day.EarnedAmount != 100 || day.SpentAmount != 40 {
		t.Errorf("unexpected daily row: %+v", day)
	}
}

func TestGetActivitySummary_InvalidRange(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeGuard(), allowAllFraud{})
	userID := uuid.New()
	mustCreateAccount(t, svc, userID)

	cases := []struct{ start, end string }{
		{"not-a-date", "2026-08-30"},
		{"2026-08-30", "nope"},
		{"2026-08-30", "2026-08-01"}, // end before start
	}
	for _, tc := range cases {
		if _, err := svc.GetActivitySummary(context.Background(), userID, tc.start, tc.end); !errors.Is(err, domain.ErrInvalidDateRange) {
			t.Errorf("GetActivitySummary(%q, %q) = %v, want ErrInvalidDateRange", tc.start, tc.end, err)
		}
	}
}

func TestSnapshotTotalCash(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeGuard(), allowAllFraud{})
	now := time.Now()

	for _, balance := range []int{300, 200} {
		account := domain.NewCashAccount(uuid.New())
		if _, err := account.Earn(balance, now); err != nil {
			t.Fatalf("seed earn failed: %v", err)
		}
		store.accounts[account.UserID] = account
	}

	total, err := svc.SnapshotTotalCash(context.Background())
	if err != nil {
		t.Fatalf("SnapshotTotalCash failed: %v", err)
	}
	if total != 500 {
		t.Errorf("total = %d, want 500", total)
	}
}
