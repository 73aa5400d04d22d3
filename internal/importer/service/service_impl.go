package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fjordmetrics/revrec/internal/config"
	importerdomain "github.com/fjordmetrics/revrec/internal/importer/domain"
	"github.com/fjordmetrics/revrec/internal/normalize"
	"github.com/fjordmetrics/revrec/internal/observability/metrics"
	"github.com/fjordmetrics/revrec/internal/period"
	productdomain "github.com/fjordmetrics/revrec/internal/product/domain"
	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	products   productdomain.Service
	normalizer *normalize.Normalizer
	metrics    *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Cfg      config.Config
	Products productdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) importerdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("importer.service"),

		genID:      p.GenID,
		products:   p.Products,
		normalizer: normalize.New(p.Cfg.TaxRate),
		metrics:    p.Metrics,
	}
}

// ImportMonth replaces the invoice-stream partition for one source month.
// Row-level data-quality conditions are counted into the summary and never
// abort the batch; only storage failures do, and those roll back the whole
// month so the previously committed state stays observable.
func (s *Service) ImportMonth(ctx context.Context, month revenuedomain.Month, rows []revenuedomain.SourceRow) (*revenuedomain.ImportSummary, error) {
	if _, err := revenuedomain.ParseMonth(month.String()); err != nil {
		return nil, err
	}

	resolver := period.NewResolver(s.products)
	linker := period.NewLinker(resolver)
	chargeResolutions := linker.ResolveCharges(rows)

	summary := &revenuedomain.ImportSummary{
		SourceMonth: month,
		Stream:      revenuedomain.StreamInvoice,
	}

	records := make([]revenuedomain.RevenueRecord, 0, len(rows))
	customers := make(map[string]struct{})
	for _, row := range rows {
		var res period.LinkedResolution
		if row.TransactionType == revenuedomain.TransactionCreditNote {
			res = linker.ResolveCredit(row)
			summary.Credits++
			if res.Unlinked {
				summary.UnlinkedCredits++
			}
		} else {
			res = chargeResolutions[chargeKey(row)]
			summary.Charges++
		}
		summary.Rows++

		rec := s.toRecord(row, month, res)
		if !rec.Resolved() {
			summary.Unresolved++
			if rec.ProductName != "" {
				if _, ok := s.products.Months(rec.ProductName); !ok {
					summary.MissingPeriodization++
				}
			}
			s.log.Warn("period unresolved, row excluded from aggregation",
				zap.String("source_month", month.String()),
				zap.String("transaction_id", rec.TransactionID),
				zap.String("product", rec.ProductName),
			)
		} else if rec.Recurring {
			if rec.TransactionType == revenuedomain.TransactionCreditNote {
				summary.CreditMRR += rec.MonthlyRate
			} else {
				summary.ChargeMRR += rec.MonthlyRate
			}
			customers[rec.CustomerID] = struct{}{}
		}

		records = append(records, rec)
	}
	summary.TotalMRR = summary.ChargeMRR + summary.CreditMRR
	summary.UniqueCustomers = len(customers)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("source_month = ? AND stream = ?", month, revenuedomain.StreamInvoice).
			Delete(&revenuedomain.RevenueRecord{}).Error; err != nil {
			return err
		}
		if len(records) > 0 {
			if err := tx.CreateInBatches(records, 500).Error; err != nil {
				return err
			}
		}
		run := revenuedomain.ImportRun{
			ID:          s.genID.Generate(),
			SourceMonth: month,
			Stream:      revenuedomain.StreamInvoice,
			Summary:     summaryMap(summary),
		}
		return tx.Create(&run).Error
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordImport(ctx, string(revenuedomain.StreamInvoice),
		summary.Rows, summary.Unresolved, summary.UnlinkedCredits, summary.MissingPeriodization)

	s.log.Info("month imported",
		zap.String("source_month", month.String()),
		zap.Int("rows", summary.Rows),
		zap.Int("unresolved", summary.Unresolved),
		zap.Int("unlinked_credits", summary.UnlinkedCredits),
		zap.Int("missing_periodization", summary.MissingPeriodization),
		zap.Float64("total_mrr", summary.TotalMRR),
	)
	return summary, nil
}

func (s *Service) toRecord(row revenuedomain.SourceRow, month revenuedomain.Month, res period.LinkedResolution) revenuedomain.RevenueRecord {
	productName := row.ItemName
	if productName == "" {
		productName = row.ProductName
	}

	rec := revenuedomain.RevenueRecord{
		ID:          s.genID.Generate(),
		Stream:      revenuedomain.StreamInvoice,
		SourceMonth: month,

		TransactionType:   row.TransactionType,
		TransactionID:     row.TransactionID,
		TransactionNumber: row.TransactionNumber,
		ItemID:            row.ItemID,

		CustomerID:   row.CustomerID,
		CustomerName: row.CustomerName,

		ProductName: productName,
		Description: row.Description,
		Category:    s.products.Category(productName),
		Recurring:   s.products.Recurring(productName),

		VesselName:      row.VesselName,
		CallSign:        row.CallSign,
		SubscriptionRef: row.SubscriptionRef,

		GrossAmount: row.GrossAmount,
		NetAmount:   s.normalizer.Net(row.GrossAmount),

		TransactionDate: row.TransactionDate,

		ReferencedChargeID: row.ReferencedChargeID,
		LinkedChargeID:     res.LinkedChargeID,
		Unlinked:           res.Unlinked && row.TransactionType == revenuedomain.TransactionCreditNote,

		PeriodStart:  res.Start,
		PeriodEnd:    res.End,
		PeriodMonths: res.Months,
		PeriodSource: res.Source,
	}

	if !rec.Resolved() {
		return rec
	}

	if row.TransactionType == revenuedomain.TransactionCreditNote {
		rec.MonthlyRate = s.normalizer.CreditMonthlyRate(row.GrossAmount, *res.Start, *res.End)
	} else {
		rec.MonthlyRate = s.normalizer.MonthlyRate(row.GrossAmount, res.Months)
	}
	return rec
}

func (s *Service) LastRun(ctx context.Context, month revenuedomain.Month) (*revenuedomain.ImportRun, error) {
	var run revenuedomain.ImportRun
	err := s.db.WithContext(ctx).
		Where("source_month = ? AND stream = ?", month, revenuedomain.StreamInvoice).
		Order("created_at DESC, id DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func chargeKey(row revenuedomain.SourceRow) string {
	if row.ItemID != "" {
		return row.TransactionID + "/" + row.ItemID
	}
	return row.TransactionID
}

func summaryMap(s *revenuedomain.ImportSummary) datatypes.JSONMap {
	return datatypes.JSONMap{
		"source_month":          s.SourceMonth.String(),
		"stream":                string(s.Stream),
		"rows":                  s.Rows,
		"charges":               s.Charges,
		"credits":               s.Credits,
		"unresolved":            s.Unresolved,
		"unlinked_credits":      s.UnlinkedCredits,
		"missing_periodization": s.MissingPeriodization,
		"charge_mrr":            s.ChargeMRR,
		"credit_mrr":            s.CreditMRR,
		"total_mrr":             s.TotalMRR,
		"unique_customers":      s.UniqueCustomers,
	}
}
