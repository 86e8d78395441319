// internal/service/coupon/infrastructure/mapper.go
package infrastructure

import (
	"encoding/json"

	"github.com/google/uuid"

	"cashkeyboard/internal/service/coupon/domain"
)

func ToDomainCoupon(m *CouponModel) *domain.Coupon {
	if m == nil {
		return nil
	}
	c := &domain.Coupon{
		ID:               uuid.MustParse(m.ID),
		UserID:           uuid.MustParse(m.UserID),
		ProductID:        uuid.MustParse(m.ProductID),
		OriginalPrice:    m.OriginalPrice,
		PaidAmount:       m.PaidAmount,
		IssueType:        domain.CouponIssueType(m.IssueType),
		IssueReason:      m.IssueReason,
		CouponCode:       m.CouponCode,
		CouponImageURL:   m.CouponImageURL,
		Status:           domain.CouponStatus(m.Status),
		ExpiresAt:        m.ExpiresAt,
		UsedAt:           m.UsedAt,
		CancelledAt:      m.CancelledAt,
		RefundAmount:     m.RefundAmount,
		CancelledByAdmin: m.CancelledByAdmin,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.Metadata != "" {
		// 元数据损坏不阻塞读路径
		_ = json.Unmarshal([]byte(m.Metadata), &c.Metadata)
	}
	return c
}

func FromDomainCoupon(c *domain.Coupon) *CouponModel {
	m := &CouponModel{
		ID:               c.ID.String(),
		UserID:           c.UserID.String(),
		ProductID:        c.ProductID.String(),
		OriginalPrice:    c.OriginalPrice,
		PaidAmount:       c.PaidAmount,
		IssueType:        string(c.IssueType),
		IssueReason:      c.IssueReason,
		CouponCode:       c.CouponCode,
		CouponImageURL:   c.CouponImageURL,
		Status:           string(c.Status),
		ExpiresAt:        c.ExpiresAt,
		UsedAt:           c.UsedAt,
		CancelledAt:      c.CancelledAt,
		RefundAmount:     c.RefundAmount,
		CancelledByAdmin: c.CancelledByAdmin,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	if len(c.Metadata) > 0 {
		if data, err := json.Marshal(c.Metadata); err == nil {
			m.Metadata = string(data)
		}
	}
	return m
}
