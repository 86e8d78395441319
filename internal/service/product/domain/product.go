// internal/service/product/domain/product.go
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrProductNotAvailable = errors.New("product is not available")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInsufficientStock   = errors.New("insufficient product stock")
)

// ProductCategory 决定优惠券的有效期档位。
type ProductCategory string

const (
	CategoryCoffee        ProductCategory = "COFFEE"
	CategoryFood          ProductCategory = "FOOD"
	CategoryGiftCard      ProductCategory = "GIFT_CARD"
	CategoryFashion       ProductCategory = "FASHION"
	CategoryDigital       ProductCategory = "DIGITAL"
	CategoryConvenience   ProductCategory = "CONVENIENCE"
	CategoryEntertainment ProductCategory = "ENTERTAINMENT"
	CategoryBeauty        ProductCategory = "BEAUTY"
	CategoryLifestyle     ProductCategory = "LIFESTYLE"
	CategoryEtc           ProductCategory = "ETC"
)

// CouponExpiry 按品类决定购买券的有效期。
// 餐饮类 30 天，礼品卡 1 年，数字内容类 90 天，其余 60 天。
func (c ProductCategory) CouponExpiry(from time.Time) time.Time {
	switch c {
	case CategoryCoffee, CategoryFood:
		return from.AddDate(0, 0, 30)
	case CategoryGiftCard:
		return from.AddDate(1, 0, 0)
	case CategoryDigital, CategoryEntertainment:
		return from.AddDate(0, 0, 90)
	default:
		return from.AddDate(0, 0, 60)
	}
}

// Product 是可兑换的商品目录项。价格单位是积分。
type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       int
	ImageURL    string
	GoodsCode   string // 外部兑换商的商品编码
	Stock       int
	Category    ProductCategory

	DeactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p *Product) IsActive() bool {
	return p.DeactivatedAt == nil
}

// IsPurchasable 上架且有库存才可购买。
func (p *Product) IsPurchasable() bool {
	return p.IsActive() && p.Stock > 0
}

// DecreaseStock 扣减库存，减到零时自动下架。
func (p *Product) DecreaseStock(quantity int, now time.Time) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if p.Stock < quantity {
		return ErrInsufficientStock
	}

	p.Stock -= quantity
	p.UpdatedAt = now
	if p.Stock == 0 && p.IsActive() {
		p.DeactivatedAt = &now
	}
	return nil
}

// IncreaseStock 补充库存。不自动重新上架，上架是运营动作。
func (p *Product) IncreaseStock(quantity int, now time.Time) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	p.Stock += quantity
	p.UpdatedAt = now
	return nil
}

func (p *Product) Deactivate(now time.Time) {
	if p.IsActive() {
		p.DeactivatedAt = &now
		p.UpdatedAt = now
	}
}

func (p *Product) Activate(now time.Time) {
	p.DeactivatedAt = nil
	p.UpdatedAt = now
}
