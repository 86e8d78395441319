// internal/service/product/infrastructure/gorm_model.go
package infrastructure

import (
	"time"
)

// ProductModel 对应 products 表。
type ProductModel struct {
	ID          string `gorm:"type:char(36);primaryKey"`
	Name        string `gorm:"type:varchar(128);not null"`
	Description string `gorm:"type:varchar(512)"`
	Price       int    `gorm:"not null"`
	ImageURL    string `gorm:"type:varchar(512)"`
	GoodsCode   string `gorm:"type:varchar(64);index"`
	Stock       int    `gorm:"not null;default:0"`
	Category    string `gorm:"type:varchar(32);index"`

	DeactivatedAt *time.Time `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (ProductModel) TableName() string {
	return "products"
}
