// internal/service/product/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cashkeyboard/internal/service/product/domain"
)

// GormProductRepository 是 ProductRepository 的 GORM 实现。
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.findByID(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate 锁定商品行，购买路径的库存扣减在这把锁下串行化。
func (r *GormProductRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	db := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.findByID(db, id)
}

func (r *GormProductRepository) findByID(db *gorm.DB, id uuid.UUID) (*domain.Product, error) {
	var model ProductModel
	err := db.Where("id = ?", id.String()).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, errors.Wrap(err, "find product")
	}
	return ToDomainProduct(&model), nil
}

func (r *GormProductRepository) Save(ctx context.Context, product *domain.Product) error {
	model := FromDomainProduct(product)
	err := r.db.WithContext(ctx).Save(model).Error
	return errors.Wrap(err, "save product")
}

func (r *GormProductRepository) ListActive(ctx context.Context, offset, limit int) ([]*domain.Product, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&ProductModel{}).
		Where("deactivated_at IS NULL")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count active products")
	}

	if limit <= 0 {
		limit = 20
	}
	var models []ProductModel
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list active products")
	}

	items := make([]*domain.Product, 0, len(models))
	for i := range models {
		items = append(items, ToDomainProduct(&models[i]))
	}
	return items, total, nil
}
