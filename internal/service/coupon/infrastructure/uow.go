// internal/service/coupon/infrastructure/uow.go
package infrastructure

import (
	"context"

	"gorm.io/gorm"

	cashinfra "cashkeyboard/internal/service/cash/infrastructure"
	"cashkeyboard/internal/service/coupon/domain"
	productinfra "cashkeyboard/internal/service/product/infrastructure"
)

// GormUnitOfWork 把购买、退款这类横跨券/商品/账本的命令
// 包进同一个数据库事务。
type GormUnitOfWork struct {
	db *gorm.DB
}

func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

func (u *GormUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := domain.Repositories{
			Coupons:  NewGormCouponRepository(tx),
			Products: productinfra.NewGormProductRepository(tx),
			Cash:     cashinfra.NewRepositories(tx),
		}
		return fn(ctx, repos)
	})
}
