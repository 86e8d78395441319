// internal/service/cash/domain/repository.go
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TransactionFilter 是流水查询的过滤条件，零值字段表示不过滤。
type TransactionFilter struct {
	Type      TransactionType
	Source    EarnSource
	StartDate *time.Time
	EndDate   *time.Time
	Offset    int
	Limit     int
}

// CashAccountRepository 是积分账户的持久化接口。
type CashAccountRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*CashAccount, error)
	// FindByUserIDForUpdate 加行锁读取，只允许在事务内调用。
	FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*CashAccount, error)
	Save(ctx context.Context, account *CashAccount) error
	// TotalCashInSystem 全系统余额合计，用于对账
	TotalCashInSystem(ctx context.Context) (int64, error)
}

// CashTransactionRepository 是账本流水的持久化接口。流水只插入，不更新。
type CashTransactionRepository interface {
	// FindByUserAndSourceID 幂等预检。不存在时返回 (nil, nil)。
	FindByUserAndSourceID(ctx context.Context, userID uuid.UUID, sourceID string) (*CashTransaction, error)
	// Save 插入一条流水。(userId, sourceId) 唯一索引冲突时
	// 返回 *DuplicateSourceIDError，这是并发竞争的最终裁决点。
	Save(ctx context.Context, tx *CashTransaction) error
	ListByUser(ctx context.Context, userID uuid.UUID, filter TransactionFilter) ([]*CashTransaction, int64, error)
	SumAmountByTypes(ctx context.Context, userID uuid.UUID, types []TransactionType, start, end time.Time) (int, error)
	CountByType(ctx context.Context, userID uuid.UUID, txType TransactionType, start, end time.Time) (int64, error)
}

// DailyLimitRepository 是每日计数器的持久化接口。
type DailyLimitRepository interface {
	// FindByUserAndDate 读取某天的计数器。缺行返回 (nil, nil)，
	// 调用方用 NewDailyLimit 构造零值实例，绝不在读路径上隐式插入。
	FindByUserAndDate(ctx context.Context, userID uuid.UUID, date string) (*DailyLimit, error)
	// FindByUserAndDateForUpdate 加行锁读取，check-then-increment 必须走这里。
	FindByUserAndDateForUpdate(ctx context.Context, userID uuid.UUID, date string) (*DailyLimit, error)
	Save(ctx context.Context, limit *DailyLimit) error
	ListByUserAndDateRange(ctx context.Context, userID uuid.UUID, startDate, endDate string) ([]*DailyLimit, error)
	// DeleteOlderThan 保留期清理，返回删除行数。
	DeleteOlderThan(ctx context.Context, cutoffDate string) (int64, error)
}

// Repositories 把一次工作单元内可见的仓储打包传给业务逻辑。
type Repositories struct {
	Accounts     CashAccountRepository
	Transactions CashTransactionRepository
	DailyLimits  DailyLimitRepository
}

// UnitOfWork 在单个数据库事务里执行 fn。
// fn 返回错误时整体回滚，不允许出现半提交的账本状态。
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
