// internal/service/coupon/domain/repository.go
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	cashdomain "cashkeyboard/internal/service/cash/domain"
	productdomain "cashkeyboard/internal/service/product/domain"
)

// CouponFilter 是优惠券列表查询的过滤条件，零值字段不过滤。
type CouponFilter struct {
	Status    CouponStatus
	IssueType CouponIssueType
	StartDate *time.Time
	EndDate   *time.Time
	Offset    int
	Limit     int
}

// CouponRepository 是优惠券的持久化接口。
type CouponRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	// FindByIDForUpdate 加行锁读取，状态迁移前必须走这里。
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Coupon, error)
	FindByCouponCode(ctx context.Context, code string) (*Coupon, error)
	Save(ctx context.Context, coupon *Coupon) error
	ListByUser(ctx context.Context, userID uuid.UUID, filter CouponFilter) ([]*Coupon, int64, error)
	// FindExpiredActive 返回已过有效期但状态仍为 ACTIVE 的券，给过期清扫用。
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*Coupon, error)
	// FindExpiringWithin 返回即将到期的 ACTIVE 券，给提醒事件用。
	FindExpiringWithin(ctx context.Context, now, threshold time.Time) ([]*Coupon, error)
	CountByStatus(ctx context.Context, status CouponStatus) (int64, error)
	SumPaidAmountByIssueType(ctx context.Context, issueType CouponIssueType, start, end time.Time) (int64, error)
	SumRefundAmount(ctx context.Context, start, end time.Time) (int64, error)
}

// Repositories 是优惠券命令在一个工作单元内可见的全部仓储。
// 购买、退款需要在同一个事务里同时触达账本和商品库存。
type Repositories struct {
	Coupons  CouponRepository
	Products productdomain.ProductRepository
	Cash     cashdomain.Repositories
}

// UnitOfWork 在单个数据库事务里执行 fn，错误时整体回滚。
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
