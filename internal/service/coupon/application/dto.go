// internal/service/coupon/application/dto.go
package application

import (
	"time"

	"github.com/google/uuid"

	coupondomain "cashkeyboard/internal/service/coupon/domain"
	productdomain "cashkeyboard/internal/service/product/domain"
)

// PurchaseCouponCommand 用积分购买一张兑换券。
type PurchaseCouponCommand struct {
	UserID    uuid.UUID         `json:"userId"`
	ProductID uuid.UUID         `json:"productId"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AdminIssueCouponCommand 管理员直接发放，不经过账本。
type AdminIssueCouponCommand struct {
	UserID      uuid.UUID                    `json:"userId"`
	ProductID   uuid.UUID                    `json:"productId"`
	IssueType   coupondomain.CouponIssueType `json:"issueType"`
	IssueReason string                       `json:"issueReason"`
}

// CancelCouponCommand 管理员取消一张 ACTIVE 券。
// RefundAmount 是承诺退款额，实际入账发生在 ProcessRefund。
type CancelCouponCommand struct {
	CouponID     uuid.UUID `json:"couponId"`
	AdminID      string    `json:"adminId"`
	RefundAmount int       `json:"refundAmount"`
}

// UpdateGifticonCommand 外部兑换商回填券码。
type UpdateGifticonCommand struct {
	CouponID       uuid.UUID `json:"couponId"`
	CouponCode     string    `json:"couponCode"`
	CouponImageURL string    `json:"couponImageUrl"`
}

// ExtendExpirationCommand 管理员延长有效期。
type ExtendExpirationCommand struct {
	CouponID     uuid.UUID `json:"couponId"`
	NewExpiresAt time.Time `json:"newExpiresAt"`
}

// CouponDTO 是优惠券的对外视图。
type CouponDTO struct {
	CouponID       uuid.UUID                    `json:"couponId"`
	UserID         uuid.UUID                    `json:"userId"`
	ProductID      uuid.UUID                    `json:"productId"`
	OriginalPrice  int                          `json:"originalPrice"`
	PaidAmount     int                          `json:"paidAmount"`
	IssueType      coupondomain.CouponIssueType `json:"issueType"`
	IssueReason    string                       `json:"issueReason,omitempty"`
	CouponCode     string                       `json:"couponCode,omitempty"`
	CouponImageURL string                       `json:"couponImageUrl,omitempty"`
	Status         coupondomain.CouponStatus    `json:"status"`
	ExpiresAt      time.Time                    `json:"expiresAt"`
	UsedAt         *time.Time                   `json:"usedAt,omitempty"`
	CancelledAt    *time.Time                   `json:"cancelledAt,omitempty"`
	RefundAmount   int                          `json:"refundAmount,omitempty"`
	CreatedAt      time.Time                    `json:"createdAt"`
}

// PurchaseCouponResult 是购买的响应：新券加上扣款后的余额。
type PurchaseCouponResult struct {
	Coupon        CouponDTO `json:"coupon"`
	TransactionID uuid.UUID `json:"transactionId"`
	PaidAmount    int       `json:"paidAmount"`
	NewBalance    int       `json:"newBalance"`
}

// RefundCouponResult 是退款处理的响应。
type RefundCouponResult struct {
	Coupon         CouponDTO  `json:"coupon"`
	RefundedAmount int        `json:"refundedAmount"`
	TransactionID  *uuid.UUID `json:"transactionId,omitempty"`
	NewBalance     int        `json:"newBalance"`
}

// VerifyCouponResult 是券码校验的响应。
type VerifyCouponResult struct {
	Coupon CouponDTO `json:"coupon"`
	Usable bool      `json:"usable"`
}

// CouponPage 是优惠券分页查询结果。
type CouponPage struct {
	Items []CouponDTO `json:"items"`
	Total int64       `json:"total"`
}

// CouponSummaryDTO 是后台对账视图：存量按状态计数，
// 购买实付和退款金额按日期区间聚合。
type CouponSummaryDTO struct {
	StatusCounts       map[coupondomain.CouponStatus]int64 `json:"statusCounts"`
	PurchasePaidAmount int64                               `json:"purchasePaidAmount"`
	RefundedAmount     int64                               `json:"refundedAmount"`
	StartDate          string                              `json:"startDate"`
	EndDate            string                              `json:"endDate"`
}

// ProductDTO 是商品目录的对外视图。
type ProductDTO struct {
	ProductID   uuid.UUID                     `json:"productId"`
	Name        string                        `json:"name"`
	Description string                        `json:"description,omitempty"`
	Price       int                           `json:"price"`
	ImageURL    string                        `json:"imageUrl,omitempty"`
	Stock       int                           `json:"stock"`
	Category    productdomain.ProductCategory `json:"category"`
}

// ProductPage 是商品分页查询结果。
type ProductPage struct {
	Items []ProductDTO `json:"items"`
	Total int64        `json:"total"`
}

func toCouponDTO(c *coupondomain.Coupon) CouponDTO {
	return CouponDTO{
		CouponID:       c.ID,
		UserID:         c.UserID,
		ProductID:      c.ProductID,
		OriginalPrice:  c.OriginalPrice,
		PaidAmount:     c.PaidAmount,
		IssueType:      c.IssueType,
		IssueReason:    c.IssueReason,
		CouponCode:     c.CouponCode,
		CouponImageURL: c.CouponImageURL,
		Status:         c.Status,
		ExpiresAt:      c.ExpiresAt,
		UsedAt:         c.UsedAt,
		CancelledAt:    c.CancelledAt,
		RefundAmount:   c.RefundAmount,
		CreatedAt:      c.CreatedAt,
	}
}

func toProductDTO(p *productdomain.Product) ProductDTO {
	return ProductDTO{
		ProductID:   p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		Stock:       p.Stock,
		Category:    p.Category,
	}
}
