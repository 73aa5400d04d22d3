package repository

import (
	"context"

	"github.com/fjordmetrics/revrec/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a thin generic gorm store for simple lookup tables.
// Aggregation and import paths use raw SQL inside transactions instead.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Save(ctx context.Context, resource *T) error
	Delete(ctx context.Context, query *T) error
	Count(ctx context.Context, query *T) (int64, error)
	BatchCreate(ctx context.Context, resources []*T) error
}
