// internal/service/coupon/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cashkeyboard/internal/service/coupon/domain"
)

// GormCouponRepository 是 CouponRepository 的 GORM 实现。
type GormCouponRepository struct {
	db *gorm.DB
}

func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

func (r *GormCouponRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	return r.findByID(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate 锁定券行，状态迁移在这把锁下串行化。
func (r *GormCouponRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	db := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.findByID(db, id)
}

func (r *GormCouponRepository) findByID(db *gorm.DB, id uuid.UUID) (*domain.Coupon, error) {
	var model CouponModel
	err := db.Where("id = ?", id.String()).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, errors.Wrap(err, "find coupon")
	}
	return ToDomainCoupon(&model), nil
}

func (r *GormCouponRepository) FindByCouponCode(ctx context.Context, code string) (*domain.Coupon, error) {
	var model CouponModel
	err := r.db.WithContext(ctx).Where("coupon_code = ?", code).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, errors.Wrap(err, "find coupon by code")
	}
	return ToDomainCoupon(&model), nil
}

func (r *GormCouponRepository) Save(ctx context.Context, coupon *domain.Coupon) error {
	model := FromDomainCoupon(coupon)
	err := r.db.WithContext(ctx).Save(model).Error
	return errors.Wrap(err, "save coupon")
}

func (r *GormCouponRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter domain.CouponFilter) ([]*domain.Coupon, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&CouponModel{}).
		Where("user_id = ?", userID.String())

	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.IssueType != "" {
		query = query.Where("issue_type = ?", string(filter.IssueType))
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count coupons")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var models []CouponModel
	err := query.Order("created_at DESC").Offset(filter.Offset).Limit(limit).Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list coupons")
	}

	items := make([]*domain.Coupon, 0, len(models))
	for i := range models {
		items = append(items, ToDomainCoupon(&models[i]))
	}
	return items, total, nil
}

// FindExpiredActive 返回已过有效期但状态仍为 ACTIVE 的券。
// 只做候选筛选，真正的状态迁移由调用方加锁后执行。
func (r *GormCouponRepository) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*domain.Coupon, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []CouponModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", string(domain.StatusActive), now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "find expired active coupons")
	}
	items := make([]*domain.Coupon, 0, len(models))
	for i := range models {
		items = append(items, ToDomainCoupon(&models[i]))
	}
	return items, nil
}

func (r *GormCouponRepository) FindExpiringWithin(ctx context.Context, now, threshold time.Time) ([]*domain.Coupon, error) {
	var models []CouponModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at > ? AND expires_at <= ?", string(domain.StatusActive), now, threshold).
		Order("expires_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "find expiring coupons")
	}
	items := make([]*domain.Coupon, 0, len(models))
	for i := range models {
		items = append(items, ToDomainCoupon(&models[i]))
	}
	return items, nil
}

func (r *GormCouponRepository) CountByStatus(ctx context.Context, status domain.CouponStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CouponModel{}).
		Where("status = ?", string(status)).
		Count(&count).Error
	return count, errors.Wrap(err, "count coupons by status")
}

func (r *GormCouponRepository) SumPaidAmountByIssueType(ctx context.Context, issueType domain.CouponIssueType, start, end time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&CouponModel{}).
		Select("COALESCE(SUM(paid_amount), 0)").
		Where("issue_type = ? AND created_at >= ? AND created_at < ?", string(issueType), start, end).
		Scan(&total).Error
	return total, errors.Wrap(err, "sum paid amount")
}

func (r *GormCouponRepository) SumRefundAmount(ctx context.Context, start, end time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&CouponModel{}).
		Select("COALESCE(SUM(refund_amount), 0)").
		Where("status = ? AND updated_at >= ? AND updated_at < ?", string(domain.StatusRefunded), start, end).
		Scan(&total).Error
	return total, errors.Wrap(err, "sum refund amount")
}
