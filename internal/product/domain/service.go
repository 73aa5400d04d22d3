package domain

import (
	"context"
	"errors"
)

var ErrProductNotFound = errors.New("product periodization not found")

// Service exposes the periodization table. Months and Category read from an
// in-memory snapshot so the import hot path never touches the database.
type Service interface {
	Months(productName string) (int, bool)
	Category(productName string) string
	Recurring(productName string) bool

	List(ctx context.Context) ([]Periodization, error)
	Upsert(ctx context.Context, entry Periodization) (*Periodization, error)
	Reload(ctx context.Context) error
}
