// internal/service/product/infrastructure/mapper.go
package infrastructure

import (
	"github.com/google/uuid"

	"cashkeyboard/internal/service/product/domain"
)

func ToDomainProduct(m *ProductModel) *domain.Product {
	if m == nil {
		return nil
	}
	return &domain.Product{
		ID:            uuid.MustParse(m.ID),
		Name:          m.Name,
		Description:   m.Description,
		Price:         m.Price,
		ImageURL:      m.ImageURL,
		GoodsCode:     m.GoodsCode,
		Stock:         m.Stock,
		Category:      domain.ProductCategory(m.Category),
		DeactivatedAt: m.DeactivatedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func FromDomainProduct(p *domain.Product) *ProductModel {
	return &ProductModel{
		ID:            p.ID.String(),
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		ImageURL:      p.ImageURL,
		GoodsCode:     p.GoodsCode,
		Stock:         p.Stock,
		Category:      string(p.Category),
		DeactivatedAt: p.DeactivatedAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
