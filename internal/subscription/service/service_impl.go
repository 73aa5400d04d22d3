package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fjordmetrics/revrec/internal/clock"
	"github.com/fjordmetrics/revrec/internal/config"
	"github.com/fjordmetrics/revrec/internal/normalize"
	"github.com/fjordmetrics/revrec/internal/period"
	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
	subscriptiondomain "github.com/fjordmetrics/revrec/internal/subscription/domain"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock

	genID      *snowflake.Node
	normalizer *normalize.Normalizer
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Cfg   config.Config
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		clock: p.Clock,

		genID:      p.GenID,
		normalizer: normalize.New(p.Cfg.TaxRate),
	}
}

// ReplaceAll swaps the entire subscription stream for the feed's current
// state. Delete and rebuild commit together; a failed sync leaves the
// previous state intact.
func (s *Service) ReplaceAll(ctx context.Context, rows []revenuedomain.SubscriptionRow) (*revenuedomain.ImportSummary, error) {
	syncMonth := revenuedomain.MonthOf(s.clock.Now())
	summary := &revenuedomain.ImportSummary{
		SourceMonth: syncMonth,
		Stream:      revenuedomain.StreamSubscription,
	}

	records := make([]revenuedomain.RevenueRecord, 0, len(rows))
	customers := make(map[string]struct{})
	for _, row := range rows {
		rec := s.toRecord(row, syncMonth)
		summary.Rows++
		if !rec.Resolved() {
			summary.Unresolved++
		} else if rec.Status.CountsTowardMRR() {
			summary.TotalMRR += rec.MonthlyRate
			customers[rec.CustomerID] = struct{}{}
		}
		records = append(records, rec)
	}
	summary.UniqueCustomers = len(customers)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("stream = ?", revenuedomain.StreamSubscription).
			Delete(&revenuedomain.RevenueRecord{}).Error; err != nil {
			return err
		}
		if len(records) > 0 {
			if err := tx.CreateInBatches(records, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription stream replaced",
		zap.String("sync_month", syncMonth.String()),
		zap.Int("rows", summary.Rows),
		zap.Int("unresolved", summary.Unresolved),
		zap.Float64("total_mrr", summary.TotalMRR),
	)
	return summary, nil
}

func (s *Service) toRecord(row revenuedomain.SubscriptionRow, syncMonth revenuedomain.Month) revenuedomain.RevenueRecord {
	months := intervalMonths(row.IntervalCount, row.IntervalUnit)

	rec := revenuedomain.RevenueRecord{
		ID:              s.genID.Generate(),
		Stream:          revenuedomain.StreamSubscription,
		SourceMonth:     syncMonth,
		TransactionType: revenuedomain.TransactionInvoice,
		TransactionID:   row.SubscriptionID,
		CustomerID:      row.CustomerID,
		CustomerName:    row.CustomerName,
		ProductName:     row.PlanName,
		VesselName:      row.VesselName,
		CallSign:        row.CallSign,
		SubscriptionRef: row.SubscriptionID,
		Status:          row.Status,
		GrossAmount:     row.GrossAmount,
		NetAmount:       s.normalizer.Net(row.GrossAmount),
		PeriodMonths:    months,
	}

	if row.ActivatedAt == nil {
		rec.PeriodSource = revenuedomain.PeriodUnresolved
		return rec
	}

	start := period.DateOnly(row.ActivatedAt.UTC())
	rec.PeriodStart = &start
	rec.PeriodSource = revenuedomain.PeriodFromConfig
	rec.TransactionDate = &start

	if end := subscriptionEnd(row); end != nil {
		e := period.DateOnly(end.UTC())
		rec.PeriodEnd = &e
	}

	rec.MonthlyRate = s.normalizer.MonthlyRate(row.GrossAmount, months)
	return rec
}

// subscriptionEnd picks the interval's closing bound: cancellation wins over
// expiry; a live subscription with neither is open-ended.
func subscriptionEnd(row revenuedomain.SubscriptionRow) *time.Time {
	if row.CancelledAt != nil {
		return row.CancelledAt
	}
	return row.ExpiresAt
}

func intervalMonths(count int, unit string) int {
	if count < 1 {
		count = 1
	}
	if strings.EqualFold(strings.TrimSpace(unit), "years") {
		return count * 12
	}
	return count
}

// ListActive returns the subscription records counting toward the month's
// snapshot: interval contains the month-end instant and status is live or
// non-renewing.
func (s *Service) ListActive(ctx context.Context, month revenuedomain.Month) ([]revenuedomain.RevenueRecord, error) {
	var records []revenuedomain.RevenueRecord
	err := s.activeQuery(ctx, month).
		Order("customer_name ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) CountActive(ctx context.Context, month revenuedomain.Month) (int64, error) {
	var count int64
	err := s.activeQuery(ctx, month).Count(&count).Error
	return count, err
}

func (s *Service) activeQuery(ctx context.Context, month revenuedomain.Month) *gorm.DB {
	monthEnd := month.End()
	return s.db.WithContext(ctx).
		Model(&revenuedomain.RevenueRecord{}).
		Where("stream = ?", revenuedomain.StreamSubscription).
		Where("status IN ?", []revenuedomain.SubscriptionStatus{
			revenuedomain.SubscriptionStatusLive,
			revenuedomain.SubscriptionStatusNonRenewing,
		}).
		Where("period_start IS NOT NULL AND period_start <= ?", monthEnd).
		Where("(period_end IS NULL OR period_end >= ?)", monthEnd)
}
