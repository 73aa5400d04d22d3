package service

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	gapdomain "github.com/fjordmetrics/revrec/internal/gap/domain"
	reconciledomain "github.com/fjordmetrics/revrec/internal/reconcile/domain"
	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
	snapshotdomain "github.com/fjordmetrics/revrec/internal/snapshot/domain"
)

type Service struct {
	log *zap.Logger

	snapshots snapshotdomain.Service
	reconcile reconciledomain.Service
}

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	Snapshots snapshotdomain.Service
	Reconcile reconciledomain.Service
}

func NewService(p ServiceParam) gapdomain.Service {
	return &Service{
		log:       p.Log.Named("gap.service"),
		snapshots: p.Snapshots,
		reconcile: p.Reconcile,
	}
}

// gapCategories is the reporting order. Exact matches close no gap, so they
// only contribute to MatchedCount.
var gapCategories = []revenuedomain.MatchCategory{
	revenuedomain.MatchNameMismatch,
	revenuedomain.MatchOwnershipChange,
	revenuedomain.MatchNoInvoice,
	revenuedomain.MatchNoSubscription,
}

// Report recomputes both stream snapshots, reconciles the month and folds the
// partition into a categorized gap breakdown.
func (s *Service) Report(ctx context.Context, month revenuedomain.Month) (*revenuedomain.GapReport, error) {
	subSnap, err := s.snapshots.Compute(ctx, revenuedomain.StreamSubscription, month)
	if err != nil {
		return nil, err
	}
	invSnap, err := s.snapshots.Compute(ctx, revenuedomain.StreamInvoice, month)
	if err != nil {
		return nil, err
	}
	results, err := s.reconcile.Reconcile(ctx, month)
	if err != nil {
		return nil, err
	}

	report := &revenuedomain.GapReport{
		Month: month,

		SubscriptionMRR: subSnap.TotalMRR,
		InvoiceMRR:      invSnap.TotalMRR,
		ChargeMRR:       invSnap.ChargeMRR,
		CreditMRR:       invSnap.CreditMRR,

		Gap: subSnap.TotalMRR - invSnap.TotalMRR,
	}
	if subSnap.TotalMRR != 0 {
		report.GapPct = report.Gap / subSnap.TotalMRR * 100
	}

	grouped := make(map[revenuedomain.MatchCategory][]revenuedomain.MatchResult)
	for _, r := range results {
		if r.Matched() {
			report.MatchedCount++
		}
		grouped[r.Category] = append(grouped[r.Category], r)
	}

	for _, category := range gapCategories {
		entities := grouped[category]
		if len(entities) == 0 {
			continue
		}
		report.Categories = append(report.Categories, revenuedomain.GapCategory{
			Category: category,
			Count:    len(entities),
			MRR:      categoryMRR(category, entities),
			Entities: entities,
		})
	}

	s.log.Info("gap report built",
		zap.String("month", month.String()),
		zap.Float64("gap", report.Gap),
		zap.Int("matched", report.MatchedCount),
		zap.Int("categories", len(report.Categories)),
	)
	return report, nil
}

// categoryMRR is each category's signed contribution to the gap
// (subscription minus invoice), so the breakdown sums toward Gap.
func categoryMRR(category revenuedomain.MatchCategory, entities []revenuedomain.MatchResult) float64 {
	var total float64
	for _, e := range entities {
		switch category {
		case revenuedomain.MatchNoInvoice:
			total += e.SubscriptionMRR
		case revenuedomain.MatchNoSubscription:
			total -= e.InvoiceMRR
		default:
			total += e.SubscriptionMRR - e.InvoiceMRR
		}
	}
	return total
}
