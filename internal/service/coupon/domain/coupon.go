// internal/service/coupon/domain/coupon.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// CouponStatus 定义了优惠券的生命周期状态。
// 状态机：ACTIVE → USED | EXPIRED | CANCELLED → REFUNDED。
// USED / EXPIRED / REFUNDED 是终态。
type CouponStatus string

const (
	StatusActive    CouponStatus = "ACTIVE"
	StatusUsed      CouponStatus = "USED"
	StatusExpired   CouponStatus = "EXPIRED"
	StatusCancelled CouponStatus = "CANCELLED"
	StatusRefunded  CouponStatus = "REFUNDED"
)

// CouponIssueType 是发放方式。
type CouponIssueType string

const (
	IssuePurchase     CouponIssueType = "PURCHASE"     // 用户用积分购买
	IssueAdmin        CouponIssueType = "ADMIN_ISSUE"  // 管理员直接发放
	IssuePromotion    CouponIssueType = "PROMOTION"    // 活动发放
	IssueCompensation CouponIssueType = "COMPENSATION" // 问题补偿发放
)

var validIssueTypes = map[CouponIssueType]struct{}{
	IssuePurchase: {}, IssueAdmin: {}, IssuePromotion: {}, IssueCompensation: {},
}

func (t CouponIssueType) IsValid() bool {
	_, ok := validIssueTypes[t]
	return ok
}

// Coupon 是一张可兑换凭证的聚合根。
// 购买产生的券通过 paidAmount 与账本的 SPEND 流水对应；
// 管理员发放的券 paidAmount 为 0，不经过账本。
type Coupon struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	ProductID     uuid.UUID
	OriginalPrice int
	PaidAmount    int
	IssueType     CouponIssueType
	IssueReason   string

	// 外部兑换商异步回填，回填前为空
	CouponCode     string
	CouponImageURL string

	Status    CouponStatus
	ExpiresAt time.Time

	UsedAt            *time.Time
	CancelledAt       *time.Time
	RefundAmount      int
	CancelledByAdmin  string
	Metadata          map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FromPurchase 创建一张购买券，初始状态恒为 ACTIVE。
func FromPurchase(userID, productID uuid.UUID, originalPrice, paidAmount int, expiresAt, now time.Time) *Coupon {
	return &Coupon{
		ID:            uuid.New(),
		UserID:        userID,
		ProductID:     productID,
		OriginalPrice: originalPrice,
		PaidAmount:    paidAmount,
		IssueType:     IssuePurchase,
		Status:        StatusActive,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// FromAdminIssue 创建一张管理员发放券，paidAmount 固定为 0。
func FromAdminIssue(userID, productID uuid.UUID, originalPrice int, issueType CouponIssueType, issueReason string, expiresAt, now time.Time) *Coupon {
	return &Coupon{
		ID:            uuid.New(),
		UserID:        userID,
		ProductID:     productID,
		OriginalPrice: originalPrice,
		PaidAmount:    0,
		IssueType:     issueType,
		IssueReason:   issueReason,
		Status:        StatusActive,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (c *Coupon) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsUsable 当前可核销：ACTIVE 且未过期。
func (c *Coupon) IsUsable(now time.Time) bool {
	return c.Status == StatusActive && !c.IsExpired(now)
}

func (c *Coupon) IsCancellable() bool {
	return c.Status == StatusActive
}

// Use 核销。只有未过期的 ACTIVE 券才能核销；
// usedAt 的兜底检查用来拦截状态字段被旁路修改的异常数据。
func (c *Coupon) Use(now time.Time) error {
	if c.Status != StatusActive {
		return ErrCouponNotActive
	}
	if c.IsExpired(now) {
		return ErrCouponExpired
	}
	if c.UsedAt != nil {
		return ErrCouponAlreadyUsed
	}

	c.Status = StatusUsed
	c.UsedAt = &now
	c.UpdatedAt = now
	return nil
}

// Cancel 管理员取消。refundAmount 必须在 [0, paidAmount] 内，
// 实际的账本退款在 ProcessRefund 阶段发生。
func (c *Coupon) Cancel(adminID string, refundAmount int, now time.Time) error {
	if !c.IsCancellable() {
		return ErrCouponNotCancellable
	}
	if refundAmount < 0 || refundAmount > c.PaidAmount {
		return ErrInvalidRefundAmount
	}

	c.Status = StatusCancelled
	c.CancelledAt = &now
	c.CancelledByAdmin = adminID
	c.RefundAmount = refundAmount
	c.UpdatedAt = now
	return nil
}

// ProcessRefund 把已取消的券置为 REFUNDED。
// 对应的账本 EARN 流水由应用层在同一个事务里补上。
func (c *Coupon) ProcessRefund(amount int, now time.Time) error {
	if c.Status != StatusCancelled {
		return ErrCouponNotCancelled
	}
	if amount < 0 || amount > c.PaidAmount {
		return ErrInvalidRefundAmount
	}

	c.Status = StatusRefunded
	c.RefundAmount = amount
	c.UpdatedAt = now
	return nil
}

// MarkExpired 到期转 EXPIRED。条件不满足时是幂等空操作。
func (c *Coupon) MarkExpired(now time.Time) bool {
	if c.Status == StatusActive && c.IsExpired(now) {
		c.Status = StatusExpired
		c.UpdatedAt = now
		return true
	}
	return false
}

// UpdateGifticonInfo 回填外部兑换商的券码和图片。
// 只允许在 ACTIVE 状态下回填，不改变状态。
func (c *Coupon) UpdateGifticonInfo(code, imageURL string, now time.Time) error {
	if c.Status != StatusActive {
		return ErrCouponNotActive
	}
	c.CouponCode = code
	c.CouponImageURL = imageURL
	c.UpdatedAt = now
	return nil
}

// ExtendExpiration 管理员延长有效期，新有效期必须在未来。
func (c *Coupon) ExtendExpiration(newExpiresAt, now time.Time) error {
	if c.Status != StatusActive {
		return ErrCouponNotActive
	}
	if !newExpiresAt.After(now) {
		return ErrInvalidExpirationDate
	}
	c.ExpiresAt = newExpiresAt
	c.UpdatedAt = now
	return nil
}
