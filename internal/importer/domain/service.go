package domain

import (
	"context"

	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
)

// Service rebuilds the invoice stream one source month at a time. The whole
// batch must be resident before import: credit linking needs every charge of
// the month resolved first.
type Service interface {
	ImportMonth(ctx context.Context, month revenuedomain.Month, rows []revenuedomain.SourceRow) (*revenuedomain.ImportSummary, error)
	LastRun(ctx context.Context, month revenuedomain.Month) (*revenuedomain.ImportRun, error)
}
