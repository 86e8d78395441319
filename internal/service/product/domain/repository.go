// internal/service/product/domain/repository.go
package domain

import (
	"context"

	"github.com/google/uuid"
)

// ProductRepository 是商品目录的持久化接口。
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	// FindByIDForUpdate 加行锁读取，购买扣库存前必须走这里。
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Product, error)
	Save(ctx context.Context, product *Product) error
	ListActive(ctx context.Context, offset, limit int) ([]*Product, int64, error)
}
