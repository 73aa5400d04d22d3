package domain

import (
	"context"

	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
)

// Service computes and serves the per-(stream, month) MRR snapshots.
// Compute is a full replace of the key; snapshots are never patched.
type Service interface {
	Compute(ctx context.Context, stream revenuedomain.Stream, month revenuedomain.Month) (*revenuedomain.MonthlySnapshot, error)
	Get(ctx context.Context, stream revenuedomain.Stream, month revenuedomain.Month) (*revenuedomain.MonthlySnapshot, error)
	Trends(ctx context.Context, stream revenuedomain.Stream, months int) ([]revenuedomain.MonthlyTrend, error)
	Categories(ctx context.Context, stream revenuedomain.Stream, month revenuedomain.Month) ([]revenuedomain.CategoryTotal, error)
}
