// internal/service/cash/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cashkeyboard/internal/service/cash/domain"
)

// isDuplicateKey 识别唯一索引冲突。
// gorm 在开启 TranslateError 时给出 ErrDuplicatedKey，
// 否则回退到 MySQL 的 1062 错误码判断。
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *gomysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// GormCashAccountRepository 是 CashAccountRepository 的 GORM 实现。
type GormCashAccountRepository struct {
	db *gorm.DB
}

func NewGormCashAccountRepository(db *gorm.DB) *GormCashAccountRepository {
	return &GormCashAccountRepository{db: db}
}

func (r *GormCashAccountRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.CashAccount, error) {
	return r.findByUserID(ctx, r.db.WithContext(ctx), userID)
}

// FindByUserIDForUpdate 用 SELECT ... FOR UPDATE 锁定账户行，
// 同一账户的余额变动由此串行化。
func (r *GormCashAccountRepository) FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*domain.CashAccount, error) {
	db := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.findByUserID(ctx, db, userID)
}

func (r *GormCashAccountRepository) findByUserID(_ context.Context, db *gorm.DB, userID uuid.UUID) (*domain.CashAccount, error) {
	var model CashAccountModel
	err := db.Where("user_id = ?", userID.String()).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "find cash account")
	}
	return ToDomainCashAccount(&model), nil
}

func (r *GormCashAccountRepository) Save(ctx context.Context, account *domain.CashAccount) error {
	model := FromDomainCashAccount(account)
	err := r.db.WithContext(ctx).Save(model).Error
	return errors.Wrap(err, "save cash account")
}

func (r *GormCashAccountRepository) TotalCashInSystem(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&CashAccountModel{}).
		Select("COALESCE(SUM(balance), 0)").
		Scan(&total).Error
	return total, errors.Wrap(err, "sum system balance")
}

// GormCashTransactionRepository 是 CashTransactionRepository 的 GORM 实现。
// 流水只插入，所以 Save 用 Create 而不是 upsert。
type GormCashTransactionRepository struct {
	db *gorm.DB
}

func NewGormCashTransactionRepository(db *gorm.DB) *GormCashTransactionRepository {
	return &GormCashTransactionRepository{db: db}
}

func (r *GormCashTransactionRepository) FindByUserAndSourceID(ctx context.Context, userID uuid.UUID, sourceID string) (*domain.CashTransaction, error) {
	var model CashTransactionModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND source_id = ?", userID.String(), sourceID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find transaction by source id")
	}
	return ToDomainCashTransaction(&model), nil
}

// Save 插入流水。唯一索引冲突说明并发请求用了同一个 sourceId，
// 这里补查赢家流水，把它的 ID 带给调用方。
func (r *GormCashTransactionRepository) Save(ctx context.Context, tx *domain.CashTransaction) error {
	model := FromDomainCashTransaction(tx)
	err := r.db.WithContext(ctx).Create(model).Error
	if err == nil {
		return nil
	}
	if isDuplicateKey(err) && tx.SourceID != "" {
		dup := &domain.DuplicateSourceIDError{SourceID: tx.SourceID}
		if prior, findErr := r.FindByUserAndSourceID(ctx, tx.UserID, tx.SourceID); findErr == nil && prior != nil {
			dup.PreviousTransactionID = prior.ID
		}
		return dup
	}
	return errors.Wrap(err, "insert cash transaction")
}

func (r *GormCashTransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter domain.TransactionFilter) ([]*domain.CashTransaction, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&CashTransactionModel{}).
		Where("user_id = ?", userID.String())

	if filter.Type != "" {
		query = query.Where("type = ?", string(filter.Type))
	}
	if filter.Source != "" {
		query = query.Where("source = ?", string(filter.Source))
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count transactions")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var models []CashTransactionModel
	err := query.Order("created_at DESC").Offset(filter.Offset).Limit(limit).Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list transactions")
	}

	items := make([]*domain.CashTransaction, 0, len(models))
	for i := range models {
		items = append(items, ToDomainCashTransaction(&models[i]))
	}
	return items, total, nil
}

func (r *GormCashTransactionRepository) SumAmountByTypes(ctx context.Context, userID uuid.UUID, types []domain.TransactionType, start, end time.Time) (int, error) {
	typeStrings := make([]string, 0, len(types))
	for _, t := range types {
		typeStrings = append(typeStrings, string(t))
	}
	var total int
	err := r.db.WithContext(ctx).
		Model(&CashTransactionModel{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND type IN ? AND created_at >= ? AND created_at < ?",
			userID.String(), typeStrings, start, end).
		Scan(&total).Error
	return total, errors.Wrap(err, "sum transaction amounts")
}

func (r *GormCashTransactionRepository) CountByType(ctx context.Context, userID uuid.UUID, txType domain.TransactionType, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CashTransactionModel{}).
		Where("user_id = ? AND type = ? AND created_at >= ? AND created_at < ?",
			userID.String(), string(txType), start, end).
		Count(&count).Error
	return count, errors.Wrap(err, "count transactions by type")
}

// GormDailyLimitRepository 是 DailyLimitRepository 的 GORM 实现。
type GormDailyLimitRepository struct {
	db *gorm.DB
}

func NewGormDailyLimitRepository(db *gorm.DB) *GormDailyLimitRepository {
	return &GormDailyLimitRepository{db: db}
}

func (r *GormDailyLimitRepository) FindByUserAndDate(ctx context.Context, userID uuid.UUID, date string) (*domain.DailyLimit, error) {
	return r.findByUserAndDate(r.db.WithContext(ctx), userID, date)
}

// FindByUserAndDateForUpdate 锁定当日计数器行。
// check-then-increment 必须在这把锁下进行，否则并发请求会双双通过限额检查。
func (r *GormDailyLimitRepository) FindByUserAndDateForUpdate(ctx context.Context, userID uuid.UUID, date string) (*domain.DailyLimit, error) {
	db := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.findByUserAndDate(db, userID, date)
}

func (r *GormDailyLimitRepository) findByUserAndDate(db *gorm.DB, userID uuid.UUID, date string) (*domain.DailyLimit, error) {
	var model DailyLimitModel
	err := db.Where("user_id = ? AND date = ?", userID.String(), date).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 缺行是正常情况：当天还没有任何动作。由调用方构造零值实例
			return nil, nil
		}
		return nil, errors.Wrap(err, "find daily limit")
	}
	return ToDomainDailyLimit(&model), nil
}

func (r *GormDailyLimitRepository) Save(ctx context.Context, limit *domain.DailyLimit) error {
	model := FromDomainDailyLimit(limit)
	err := r.db.WithContext(ctx).Save(model).Error
	return errors.Wrap(err, "save daily limit")
}

func (r *GormDailyLimitRepository) ListByUserAndDateRange(ctx context.Context, userID uuid.UUID, startDate, endDate string) ([]*domain.DailyLimit, error) {
	var models []DailyLimitModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID.String(), startDate, endDate).
		Order("date DESC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list daily limits")
	}
	items := make([]*domain.DailyLimit, 0, len(models))
	for i := range models {
		items = append(items, ToDomainDailyLimit(&models[i]))
	}
	return items, nil
}

func (r *GormDailyLimitRepository) DeleteOlderThan(ctx context.Context, cutoffDate string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("date < ?", cutoffDate).
		Delete(&DailyLimitModel{})
	return result.RowsAffected, errors.Wrap(result.Error, "delete old daily limits")
}
