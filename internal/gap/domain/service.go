package domain

import (
	"context"

	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
)

// Service explains the difference between the two streams' MRR for a month.
// A report carries every discrepant entity; nothing is sampled away.
type Service interface {
	Report(ctx context.Context, month revenuedomain.Month) (*revenuedomain.GapReport, error)
}
