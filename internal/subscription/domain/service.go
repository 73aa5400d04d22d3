package domain

import (
	"context"

	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
)

// Service maintains the subscription-stream side of the revenue record
// table. The feed is authoritative per sync: ReplaceAll swaps the whole
// stream in one transaction.
type Service interface {
	ReplaceAll(ctx context.Context, rows []revenuedomain.SubscriptionRow) (*revenuedomain.ImportSummary, error)
	ListActive(ctx context.Context, month revenuedomain.Month) ([]revenuedomain.RevenueRecord, error)
	CountActive(ctx context.Context, month revenuedomain.Month) (int64, error)
}
