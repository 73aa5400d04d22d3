package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fjordmetrics/revrec/internal/observability/metrics"
	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
	snapshotdomain "github.com/fjordmetrics/revrec/internal/snapshot/domain"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	metrics *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) snapshotdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("snapshot.service"),

		genID:   p.GenID,
		metrics: p.Metrics,
	}
}

type aggregateRow struct {
	TotalMRR        float64
	CustomerCount   int
	ChargeLineCount int
	CreditLineCount int
	ChargeMRR       float64
	CreditMRR       float64
}

// Compute derives the month's snapshot from the record table and replaces
// the stored (stream, month) key in one transaction. The aggregation is a
// point-in-time containment against the month's closing instant, so it is
// invariant to source row order.
func (s *Service) Compute(ctx context.Context, stream revenuedomain.Stream, month revenuedomain.Month) (*revenuedomain.MonthlySnapshot, error) {
	if _, err := revenuedomain.ParseMonth(month.String()); err != nil {
		return nil, err
	}

	var agg aggregateRow
	if err := s.activeRecords(ctx, stream, month).
		Select(`COALESCE(SUM(monthly_rate), 0) AS total_mrr,
COUNT(DISTINCT customer_id) AS customer_count,
COALESCE(SUM(CASE WHEN transaction_type = ? THEN 1 ELSE 0 END), 0) AS credit_line_count,
COALESCE(SUM(CASE WHEN transaction_type = ? THEN 0 ELSE 1 END), 0) AS charge_line_count,
COALESCE(SUM(CASE WHEN transaction_type = ? THEN monthly_rate ELSE 0 END), 0) AS credit_mrr,
COALESCE(SUM(CASE WHEN transaction_type = ? THEN 0 ELSE monthly_rate END), 0) AS charge_mrr`,
			revenuedomain.TransactionCreditNote,
			revenuedomain.TransactionCreditNote,
			revenuedomain.TransactionCreditNote,
			revenuedomain.TransactionCreditNote).
		Scan(&agg).Error; err != nil {
		return nil, fmt.Errorf("aggregate %s %s: %w", stream, month, err)
	}

	snap := &revenuedomain.MonthlySnapshot{
		ID:     s.genID.Generate(),
		Stream: stream,
		Month:  month,

		TotalMRR:      agg.TotalMRR,
		ARR:           agg.TotalMRR * 12,
		CustomerCount: agg.CustomerCount,

		ChargeLineCount: agg.ChargeLineCount,
		CreditLineCount: agg.CreditLineCount,
		ChargeMRR:       agg.ChargeMRR,
		CreditMRR:       agg.CreditMRR,
	}
	if agg.CustomerCount > 0 {
		snap.ARPU = agg.TotalMRR / float64(agg.CustomerCount)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("stream = ? AND month = ?", stream, month).
			Delete(&revenuedomain.MonthlySnapshot{}).Error; err != nil {
			return err
		}
		return tx.Create(snap).Error
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSnapshot(ctx, string(stream))
	s.log.Info("snapshot computed",
		zap.String("stream", string(stream)),
		zap.String("month", month.String()),
		zap.Float64("total_mrr", snap.TotalMRR),
		zap.Int("customers", snap.CustomerCount),
	)
	return snap, nil
}

func (s *Service) Get(ctx context.Context, stream revenuedomain.Stream, month revenuedomain.Month) (*revenuedomain.MonthlySnapshot, error) {
	var snap revenuedomain.MonthlySnapshot
	err := s.db.WithContext(ctx).
		Where("stream = ? AND month = ?", stream, month).
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, revenuedomain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Trends returns the last n stored snapshots for a stream, oldest first,
// with month-over-month deltas.
func (s *Service) Trends(ctx context.Context, stream revenuedomain.Stream, months int) ([]revenuedomain.MonthlyTrend, error) {
	if months < 1 {
		months = 12
	}

	var snaps []revenuedomain.MonthlySnapshot
	err := s.db.WithContext(ctx).
		Where("stream = ?", stream).
		Order("month DESC").
		Limit(months).
		Find(&snaps).Error
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}

	trends := make([]revenuedomain.MonthlyTrend, 0, len(snaps))
	for i, snap := range snaps {
		trend := revenuedomain.MonthlyTrend{
			Month:         snap.Month,
			TotalMRR:      snap.TotalMRR,
			ARR:           snap.ARR,
			CustomerCount: snap.CustomerCount,
			ARPU:          snap.ARPU,
		}
		if i > 0 {
			prev := snaps[i-1]
			trend.MRRChange = snap.TotalMRR - prev.TotalMRR
			if prev.TotalMRR != 0 {
				trend.MRRChangePct = trend.MRRChange / prev.TotalMRR * 100
			}
			trend.CustomerChange = snap.CustomerCount - prev.CustomerCount
		}
		trends = append(trends, trend)
	}
	return trends, nil
}

// Categories breaks the month down per product category, recurring and
// one-time alike, so non-recurring revenue stays visible even though it is
// excluded from the MRR totals.
func (s *Service) Categories(ctx context.Context, stream revenuedomain.Stream, month revenuedomain.Month) ([]revenuedomain.CategoryTotal, error) {
	var totals []revenuedomain.CategoryTotal
	err := s.containedRecords(ctx, stream, month).
		Select(`COALESCE(NULLIF(category, ''), 'uncategorized') AS category,
recurring,
COALESCE(SUM(monthly_rate), 0) AS mrr,
COUNT(*) AS count`).
		Group("COALESCE(NULLIF(category, ''), 'uncategorized'), recurring").
		Order("category ASC, recurring DESC").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}

// activeRecords is the snapshot population: contained in the month, recurring,
// and on the subscription stream also live or non-renewing.
func (s *Service) activeRecords(ctx context.Context, stream revenuedomain.Stream, month revenuedomain.Month) *gorm.DB {
	q := s.containedRecords(ctx, stream, month).Where("recurring = ?", true)
	if stream == revenuedomain.StreamSubscription {
		q = q.Where("status IN ?", []revenuedomain.SubscriptionStatus{
			revenuedomain.SubscriptionStatusLive,
			revenuedomain.SubscriptionStatusNonRenewing,
		})
	}
	return q
}

func (s *Service) containedRecords(ctx context.Context, stream revenuedomain.Stream, month revenuedomain.Month) *gorm.DB {
	monthEnd := month.End()
	return s.db.WithContext(ctx).
		Model(&revenuedomain.RevenueRecord{}).
		Where("stream = ?", stream).
		Where("period_start IS NOT NULL AND period_start <= ?", monthEnd).
		Where("(period_end IS NULL OR period_end >= ?)", monthEnd)
}
