package domain

import (
	"context"

	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
)

// Service pairs subscription-stream entities with invoice-stream entities
// for one month. The partition it returns is stable: identical input always
// yields an identical result, since it feeds an audit-grade export.
type Service interface {
	Reconcile(ctx context.Context, month revenuedomain.Month) ([]revenuedomain.MatchResult, error)
}
