// internal/service/cash/infrastructure/uow.go
package infrastructure

import (
	"context"

	"gorm.io/gorm"

	"cashkeyboard/internal/service/cash/domain"
)

// GormUnitOfWork 用 gorm 的事务把一次命令的所有写操作包进
// 同一个数据库事务。fn 返回错误即整体回滚。
type GormUnitOfWork struct {
	db *gorm.DB
}

func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

func (u *GormUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := NewRepositories(tx)
		return fn(ctx, repos)
	})
}

// NewRepositories 基于给定的 db 句柄（事务内或事务外）构造仓储集合。
func NewRepositories(db *gorm.DB) domain.Repositories {
	return domain.Repositories{
		Accounts:     NewGormCashAccountRepository(db),
		Transactions: NewGormCashTransactionRepository(db),
		DailyLimits:  NewGormDailyLimitRepository(db),
	}
}
