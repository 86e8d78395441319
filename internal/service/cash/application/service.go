// internal/service/cash/application/service.go
package application

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cashkeyboard/internal/pkg/logger"
	"cashkeyboard/internal/pkg/metrics"
	"cashkeyboard/internal/service/cash/domain"
)

// CashService 实现积分域的全部业务用例。
// 每个命令在一个工作单元（数据库事务）内完成：
// 幂等预检 → 行锁读取 → 限额校验 → 账本变动 → 计数器变动 → 提交。
type CashService struct {
	uow    domain.UnitOfWork
	guard  domain.SourceGuard
	fraud  domain.FraudChecker
	reward *domain.RewardEngine
	tracer trace.Tracer
}

// NewCashService 创建积分服务实例。
func NewCashService(uow domain.UnitOfWork, guard domain.SourceGuard, fraud domain.FraudChecker, reward *domain.RewardEngine, tracer trace.Tracer) *CashService {
	return &CashService{
		uow:    uow,
		guard:  guard,
		fraud:  fraud,
		reward: reward,
		tracer: tracer,
	}
}

// CreateAccount 为用户懒创建积分账户。重复创建幂等，返回既有账户。
func (s *CashService) CreateAccount(ctx context.Context, userID uuid.UUID) (*CashAccountDTO, error) {
	ctx, span := s.tracer.Start(ctx, "cash.CreateAccount")
	defer span.End()

	var dto *CashAccountDTO
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		existing, err := repos.Accounts.FindByUserID(ctx, userID)
		if err == nil {
			dto = toAccountDTO(existing)
			return nil
		}
		if err != domain.ErrAccountNotFound {
			return err
		}

		account := domain.NewCashAccount(userID)
		if err := repos.Accounts.Save(ctx, account); err != nil {
			return err
		}
		dto = toAccountDTO(account)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return dto, nil
}

// Earn 处理一次确定性发放。
func (s *CashService) Earn(ctx context.Context, cmd EarnCashCommand) (*EarnCashResult, error) {
	ctx, span := s.tracer.Start(ctx, "cash.Earn")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", cmd.UserID.String()),
		attribute.Int("earn.amount", cmd.Amount),
		attribute.String("earn.source", string(cmd.Source)),
	)

	if cmd.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !cmd.Source.IsValid() {
		return nil, domain.ErrInvalidSource
	}
	if cmd.SourceID == "" {
		return nil, domain.ErrMissingSourceID
	}
	if err := s.fraud.Validate(ctx, domain.EarnFact{
		UserID:   cmd.UserID.String(),
		Source:   string(cmd.Source),
		Amount:   cmd.Amount,
		Metadata: cmd.Metadata,
	}); err != nil {
		metrics.CommandRejectedTotal.WithLabelValues("fraud").Inc()
		return nil, err
	}

	// 快速去重通道。未命中不代表安全，事务内还有预检和唯一索引兜底。
	if err := s.checkGuard(ctx, cmd.UserID, cmd.SourceID); err != nil {
		metrics.CommandRejectedTotal.WithLabelValues("duplicate_source").Inc()
		return nil, err
	}

	now := time.Now()
	var result *EarnCashResult
	var savedTx *domain.CashTransaction

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := checkDuplicateSource(ctx, repos, cmd.UserID, cmd.SourceID); err != nil {
			return err
		}

		account, err := repos.Accounts.FindByUserIDForUpdate(ctx, cmd.UserID)
		if err != nil {
			return err
		}

		limit, err := lockDailyLimit(ctx, repos, cmd.UserID, now)
		if err != nil {
			return err
		}
		if !limit.CanEarn(cmd.Amount) {
			return domain.ErrDailyLimitExceeded
		}
		if limit.IsEarnRateLimited(now) {
			return &domain.RateLimitedError{
				Action:     "EARN",
				RetryAfter: retryAfter(limit.LastEarnAt, domain.EarnRateLimit, now),
			}
		}

		tx, err := account.Earn(cmd.Amount, now)
		if err != nil {
			return err
		}
		tx.Source = cmd.Source
		tx.SourceID = cmd.SourceID
		tx.Metadata = cmd.Metadata

		if err := limit.RecordEarn(cmd.Amount, now); err != nil {
			return err
		}

		if err := repos.Accounts.Save(ctx, account); err != nil {
			return err
		}
		if err := repos.Transactions.Save(ctx, tx); err != nil {
			return err
		}
		if err := repos.DailyLimits.Save(ctx, limit); err != nil {
			return err
		}

		savedTx = tx
		result = &EarnCashResult{
			TransactionID: tx.ID,
			EarnedAmount:  cmd.Amount,
			NewBalance:    account.Balance,
			DailyStatus: DailyStatus{
				TodayEarned:              limit.TodayEarned,
				RemainingEarnLimit:       limit.RemainingEarnLimit(),
				TodayEarnedCount:         limit.TodayEarnedCount,
				RemainingRandomEarnCount: limit.RemainingRandomEarnCount(),
			},
			Timestamp: tx.CreatedAt,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.rememberGuard(ctx, cmd.UserID, cmd.SourceID, savedTx.ID)
	metrics.CashEarnedTotal.WithLabelValues(string(cmd.Source)).Add(float64(cmd.Amount))
	logger.Ctx(ctx).Info().
		Str("user_id", cmd.UserID.String()).
		Int("amount", cmd.Amount).
		Int("new_balance", result.NewBalance).
		Msg("cash earned")
	return result, nil
}

// RandomEarn 处理一次抽奖发放。
// 未中奖不写账本流水，但抽奖次数照常计数，sourceId 也不会被占用。
func (s *CashService) RandomEarn(ctx context.Context, cmd RandomEarnCashCommand) (*RandomEarnCashResult, error) {
	ctx, span := s.tracer.Start(ctx, "cash.RandomEarn")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", cmd.UserID.String()),
		attribute.String("earn.source", string(cmd.Source)),
	)

	if !cmd.Source.IsValid() {
		return nil, domain.ErrInvalidSource
	}
	if cmd.SourceID == "" {
		return nil, domain.ErrMissingSourceID
	}
	if err := s.fraud.Validate(ctx, domain.EarnFact{
		UserID:   cmd.UserID.String(),
		Source:   string(cmd.Source),
		Metadata: cmd.Metadata,
	}); err != nil {
		metrics.CommandRejectedTotal.WithLabelValues("fraud").Inc()
		return nil, err
	}
	if err := s.checkGuard(ctx, cmd.UserID, cmd.SourceID); err != nil {
		metrics.CommandRejectedTotal.WithLabelValues("duplicate_source").Inc()
		return nil, err
	}

	now := time.Now()
	var result *RandomEarnCashResult
	var savedTx *domain.CashTransaction

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := checkDuplicateSource(ctx, repos, cmd.UserID, cmd.SourceID); err != nil {
			return err
		}

		account, err := repos.Accounts.FindByUserIDForUpdate(ctx, cmd.UserID)
		if err != nil {
			return err
		}

		limit, err := lockDailyLimit(ctx, repos, cmd.UserID, now)
		if err != nil {
			return err
		}
		if !limit.CanRandomEarn() {
			return domain.ErrRandomEarnLimitExceeded
		}
		if limit.IsRandomEarnRateLimited(now) {
			return &domain.RateLimitedError{
				Action:     "RANDOM_EARN",
				RetryAfter: retryAfter(limit.LastRandomEarnAt, domain.RandomEarnRateLimit, now),
			}
		}

		outcome := s.reward.CalculateRandomEarn(cmd.Source)

		tx, err := account.EarnRandom(outcome.Amount, cmd.Source, cmd.SourceID, now)
		if err != nil {
			return err
		}
		tx.Metadata = withRewardMetadata(cmd.Metadata, outcome)

		if err := limit.RecordRandomEarn(now); err != nil {
			return err
		}

		if err := repos.Accounts.Save(ctx, account); err != nil {
			return err
		}
		// 未中奖的流水不落库：它不改变余额，对账本只是噪音
		if outcome.IsWinner {
			if err := repos.Transactions.Save(ctx, tx); err != nil {
				return err
			}
			savedTx = tx
		}
		if err := repos.DailyLimits.Save(ctx, limit); err != nil {
			return err
		}

		result = &RandomEarnCashResult{
			IsWinner:     outcome.IsWinner,
			EarnedAmount: outcome.Amount,
			NewBalance:   account.Balance,
			RandomResult: RandomEarnDetail{
				WinRate:         outcome.WinRate,
				Tier:            outcome.Tier,
				PossibleAmounts: outcome.PossibleAmounts,
			},
			DailyStatus: RandomEarnDailyStatus{
				TodayRandomEarnedCount:   limit.TodayRandomEarnedCount,
				RemainingRandomEarnCount: limit.RemainingRandomEarnCount(),
			},
			Timestamp: now,
		}
		if savedTx != nil {
			result.TransactionID = &savedTx.ID
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if savedTx != nil {
		s.rememberGuard(ctx, cmd.UserID, cmd.SourceID, savedTx.ID)
		metrics.CashEarnedTotal.WithLabelValues(string(cmd.Source)).Add(float64(result.EarnedAmount))
	}
	outcomeLabel := "lose"
	if result.IsWinner {
		outcomeLabel = "win"
	}
	metrics.RandomEarnAttemptsTotal.WithLabelValues(string(cmd.Source), outcomeLabel).Inc()
	logger.Ctx(ctx).Info().
		Str("user_id", cmd.UserID.String()).
		Bool("is_winner", result.IsWinner).
		Int("amount", result.EarnedAmount).
		Msg("random earn processed")
	return result, nil
}

// Spend 处理一次积分消耗。
func (s *CashService) Spend(ctx context.Context, cmd SpendCashCommand) (*SpendCashResult, error) {
	ctx, span := s.tracer.Start(ctx, "cash.Spend")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", cmd.UserID.String()),
		attribute.Int("spend.amount", cmd.Amount),
		attribute.String("spend.purpose", string(cmd.Purpose)),
	)

	var result *SpendCashResult
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		result, err = ExecuteSpend(ctx, repos, cmd, time.Now())
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	metrics.CashSpentTotal.WithLabelValues(string(cmd.Purpose)).Add(float64(cmd.Amount))
	logger.Ctx(ctx).Info().
		Str("user_id", cmd.UserID.String()).
		Int("amount", cmd.Amount).
		Int("new_balance", result.NewBalance).
		Msg("cash spent")
	return result, nil
}

// ExecuteSpend 在已开启的工作单元内执行消耗逻辑。
// 单独导出是因为优惠券购买需要在自己的事务里复用同一套扣减流程。
func ExecuteSpend(ctx context.Context, repos domain.Repositories, cmd SpendCashCommand, now time.Time) (*SpendCashResult, error) {
	if cmd.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !cmd.Purpose.IsValid() {
		return nil, domain.ErrInvalidPurpose
	}

	account, err := repos.Accounts.FindByUserIDForUpdate(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if !account.CanSpend(cmd.Amount) {
		return nil, domain.ErrInsufficientBalance
	}

	limit, err := lockDailyLimit(ctx, repos, cmd.UserID, now)
	if err != nil {
		return nil, err
	}
	if limit.IsSpendRateLimited(now) {
		return nil, &domain.RateLimitedError{
			Action:     "SPEND",
			RetryAfter: retryAfter(limit.LastSpendAt, domain.SpendRateLimit, now),
		}
	}

	tx, err := account.Spend(cmd.Amount, cmd.Purpose, cmd.TargetID, now)
	if err != nil {
		return nil, err
	}
	tx.Metadata = cmd.Metadata

	limit.RecordSpend(cmd.Amount, now)

	if err := repos.Accounts.Save(ctx, account); err != nil {
		return nil, err
	}
	if err := repos.Transactions.Save(ctx, tx); err != nil {
		return nil, err
	}
	if err := repos.DailyLimits.Save(ctx, limit); err != nil {
		return nil, err
	}

	return &SpendCashResult{
		TransactionID: tx.ID,
		SpentAmount:   cmd.Amount,
		NewBalance:    account.Balance,
		Timestamp:     tx.CreatedAt,
	}, nil
}

// ExecuteRefundCredit 在已开启的工作单元内把退款记回账本。
// 退款是 EARN 类型的流水，但不占用每日发放限额，也不受冷却窗口约束。
func ExecuteRefundCredit(ctx context.Context, repos domain.Repositories, userID uuid.UUID, amount int, couponID uuid.UUID, now time.Time) (*domain.CashTransaction, error) {
	account, err := repos.Accounts.FindByUserIDForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}

	tx, err := account.Earn(amount, now)
	if err != nil {
		return nil, err
	}
	tx.Metadata = map[string]string{
		"refundCouponId": couponID.String(),
	}

	if err := repos.Accounts.Save(ctx, account); err != nil {
		return nil, err
	}
	if err := repos.Transactions.Save(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// GetAccount 查询账户概要。
func (s *CashService) GetAccount(ctx context.Context, userID uuid.UUID) (*CashAccountDTO, error) {
	ctx, span := s.tracer.Start(ctx, "cash.GetAccount")
	defer span.End()

	var dto *CashAccountDTO
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		account, err := repos.Accounts.FindByUserID(ctx, userID)
		if err != nil {
			return err
		}
		dto = toAccountDTO(account)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return dto, nil
}

// GetTransactions 分页查询流水。
func (s *CashService) GetTransactions(ctx context.Context, userID uuid.UUID, filter domain.TransactionFilter) (*TransactionPage, error) {
	ctx, span := s.tracer.Start(ctx, "cash.GetTransactions")
	defer span.End()

	var page *TransactionPage
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		items, total, err := repos.Transactions.ListByUser(ctx, userID, filter)
		if err != nil {
			return err
		}
		page = &TransactionPage{Items: items, Total: total}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return page, nil
}

// GetDailyLimits 查询当日额度。缺行时返回零值额度，不会触发插入。
func (s *CashService) GetDailyLimits(ctx context.Context, userID uuid.UUID, date string) (*DailyLimitsDTO, error) {
	ctx, span := s.tracer.Start(ctx, "cash.GetDailyLimits")
	defer span.End()

	var dto *DailyLimitsDTO
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		limit, err := repos.DailyLimits.FindByUserAndDate(ctx, userID, date)
		if err != nil {
			return err
		}
		if limit == nil {
			limit = domain.NewDailyLimit(userID, date)
		}
		dto = &DailyLimitsDTO{
			UserID:                   userID,
			Date:                     date,
			MaxDailyEarn:             domain.MaxDailyEarn,
			TodayEarned:              limit.TodayEarned,
			RemainingEarnLimit:       limit.RemainingEarnLimit(),
			MaxDailyEarnCount:        domain.MaxDailyEarnCount,
			TodayEarnedCount:         limit.TodayEarnedCount,
			RemainingEarnCount:       limit.RemainingEarnCount(),
			MaxRandomEarnCount:       domain.MaxRandomEarnCount,
			TodayRandomEarnedCount:   limit.TodayRandomEarnedCount,
			RemainingRandomEarnCount: limit.RemainingRandomEarnCount(),
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return dto, nil
}

// GetActivitySummary 聚合日期区间（含两端，格式 2006-01-02）内的账户活动。
// 总量从账本流水算，逐日明细直接读计数器行，两者口径一致但来源不同，
// 对不上时优先相信账本。
func (s *CashService) GetActivitySummary(ctx context.Context, userID uuid.UUID, startDate, endDate string) (*ActivitySummaryDTO, error) {
	ctx, span := s.tracer.Start(ctx, "cash.GetActivitySummary")
	defer span.End()

	start, err := time.ParseInLocation("2006-01-02", startDate, time.Local)
	if err != nil {
		return nil, domain.ErrInvalidDateRange
	}
	endDay, err := time.ParseInLocation("2006-01-02", endDate, time.Local)
	if err != nil || endDay.Before(start) {
		return nil, domain.ErrInvalidDateRange
	}
	end := endDay.AddDate(0, 0, 1) // 半开区间 [start, end)，覆盖 endDate 全天

	var dto *ActivitySummaryDTO
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Accounts.FindByUserID(ctx, userID); err != nil {
			return err
		}

		earned, err := repos.Transactions.SumAmountByTypes(ctx, userID,
			[]domain.TransactionType{domain.TransactionEarn, domain.TransactionRandomEarn}, start, end)
		if err != nil {
			return err
		}
		spent, err := repos.Transactions.SumAmountByTypes(ctx, userID,
			[]domain.TransactionType{domain.TransactionSpend}, start, end)
		if err != nil {
			return err
		}
		earnCount, err := repos.Transactions.CountByType(ctx, userID, domain.TransactionEarn, start, end)
		if err != nil {
			return err
		}
		randomCount, err := repos.Transactions.CountByType(ctx, userID, domain.TransactionRandomEarn, start, end)
		if err != nil {
			return err
		}
		spendCount, err := repos.Transactions.CountByType(ctx, userID, domain.TransactionSpend, start, end)
		if err != nil {
			return err
		}

		limits, err := repos.DailyLimits.ListByUserAndDateRange(ctx, userID, startDate, endDate)
		if err != nil {
			return err
		}
		days := make([]DailyActivityDTO, 0, len(limits))
		for _, l := range limits {
			days = append(days, DailyActivityDTO{
				Date:            l.Date,
				EarnedAmount:    l.TodayEarned,
				EarnedCount:     l.TodayEarnedCount,
				RandomEarnCount: l.TodayRandomEarnedCount,
				SpentAmount:     l.TodaySpent,
			})
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })

		dto = &ActivitySummaryDTO{
			UserID:          userID,
			StartDate:       startDate,
			EndDate:         endDate,
			TotalEarned:     earned,
			TotalSpent:      spent,
			EarnCount:       earnCount,
			RandomEarnCount: randomCount,
			SpendCount:      spendCount,
			Days:            days,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return dto, nil
}

// SnapshotTotalCash 统计全系统余额并刷新对账指标，由后台任务周期调用。
// 余额突变而发放/消耗指标没有对应变化时，说明有绕过账本的写入。
func (s *CashService) SnapshotTotalCash(ctx context.Context) (int64, error) {
	var total int64
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		total, err = repos.Accounts.TotalCashInSystem(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	metrics.CashInSystem.Set(float64(total))
	return total, nil
}

// PurgeOldDailyLimits 删除保留期之外的计数器行，由后台任务周期调用。
func (s *CashService) PurgeOldDailyLimits(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := domain.DateKey(time.Now().AddDate(0, 0, -retentionDays))

	var deleted int64
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		deleted, err = repos.DailyLimits.DeleteOlderThan(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		logger.Ctx(ctx).Info().Int64("deleted", deleted).Str("cutoff", cutoff).Msg("purged old daily limits")
	}
	return deleted, nil
}

// --- 内部辅助 ---

func (s *CashService) checkGuard(ctx context.Context, userID uuid.UUID, sourceID string) error {
	prior, err := s.guard.PriorTransaction(ctx, userID, sourceID)
	if err != nil {
		// guard 故障时放行，交给数据库兜底
		logger.Ctx(ctx).Warn().Err(err).Msg("source guard check failed, falling through to db")
		return nil
	}
	if prior != uuid.Nil {
		return &domain.DuplicateSourceIDError{SourceID: sourceID, PreviousTransactionID: prior}
	}
	return nil
}

func (s *CashService) rememberGuard(ctx context.Context, userID uuid.UUID, sourceID string, txID uuid.UUID) {
	if err := s.guard.Remember(ctx, userID, sourceID, txID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("source guard remember failed")
	}
}

// checkDuplicateSource 是事务内的幂等预检，和唯一索引一起关闭竞态窗口。
func checkDuplicateSource(ctx context.Context, repos domain.Repositories, userID uuid.UUID, sourceID string) error {
	existing, err := repos.Transactions.FindByUserAndSourceID(ctx, userID, sourceID)
	if err != nil {
		return err
	}
	if existing != nil {
		return &domain.DuplicateSourceIDError{SourceID: sourceID, PreviousTransactionID: existing.ID}
	}
	return nil
}

// lockDailyLimit 锁定当日计数器行。缺行时返回未持久化的零值实例，
// 由后续的 Save 落库；并发首插由 (userId, date) 唯一索引裁决。
func lockDailyLimit(ctx context.Context, repos domain.Repositories, userID uuid.UUID, now time.Time) (*domain.DailyLimit, error) {
	date := domain.DateKey(now)
	limit, err := repos.DailyLimits.FindByUserAndDateForUpdate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if limit == nil {
		limit = domain.NewDailyLimit(userID, date)
	}
	return limit, nil
}

func retryAfter(last *time.Time, window time.Duration, now time.Time) time.Duration {
	if last == nil {
		return 0
	}
	return window - now.Sub(*last)
}

func withRewardMetadata(metadata map[string]string, outcome domain.RandomEarnOutcome) map[string]string {
	merged := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		merged[k] = v
	}
	merged["tier"] = string(outcome.Tier)
	merged["winRate"] = formatWinRate(outcome.WinRate)
	return merged
}

func formatWinRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}

func toAccountDTO(a *domain.CashAccount) *CashAccountDTO {
	return &CashAccountDTO{
		AccountID:    a.ID,
		UserID:       a.UserID,
		Balance:      a.Balance,
		TotalEarned:  a.TotalEarned,
		TotalSpent:   a.TotalSpent,
		LastEarnedAt: a.LastEarnedAt,
		LastSpentAt:  a.LastSpentAt,
	}
}
