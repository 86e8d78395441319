// internal/service/coupon/infrastructure/gorm_model.go
package infrastructure

import (
	"time"
)

// CouponModel 对应 coupons 表。
type CouponModel struct {
	ID            string `gorm:"type:char(36);primaryKey"`
	UserID        string `gorm:"type:char(36);index:idx_coupons_user_status"`
	ProductID     string `gorm:"type:char(36);index"`
	OriginalPrice int    `gorm:"not null"`
	PaidAmount    int    `gorm:"not null;default:0"`
	IssueType     string `gorm:"type:varchar(16);not null"`
	IssueReason   string `gorm:"type:varchar(256)"`

	CouponCode     string `gorm:"type:varchar(64);index"`
	CouponImageURL string `gorm:"type:varchar(512)"`

	// (status, expires_at) 上的索引服务过期清扫的范围查询
	Status    string    `gorm:"type:varchar(16);not null;index:idx_coupons_user_status;index:idx_coupons_status_expires"`
	ExpiresAt time.Time `gorm:"not null;index:idx_coupons_status_expires"`

	UsedAt           *time.Time
	CancelledAt      *time.Time
	RefundAmount     int    `gorm:"not null;default:0"`
	CancelledByAdmin string `gorm:"type:varchar(64)"`
	Metadata         string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (CouponModel) TableName() string {
	return "coupons"
}
