package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fjordmetrics/revrec/internal/observability/metrics"
	reconciledomain "github.com/fjordmetrics/revrec/internal/reconcile/domain"
	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	metrics *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) reconciledomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("reconcile.service"),

		metrics: p.Metrics,
	}
}

// entity is one commercial relationship on either stream, aggregated to the
// granularity the matchers pair at.
type entity struct {
	key string

	subscriptionID  string
	subscriptionRef string

	customerID   string
	customerName string
	vesselName   string
	callSign     string

	mrr float64
}

// Reconcile partitions the month's entities into matched pairs and explicit
// leftovers. Matching runs as ordered tiers over shared candidate pools with
// set-subtraction in between: a tier only ever sees entities no earlier tier
// claimed. Iteration is over sorted keys throughout, so reruns on identical
// input produce an identical partition.
func (s *Service) Reconcile(ctx context.Context, month revenuedomain.Month) ([]revenuedomain.MatchResult, error) {
	if _, err := revenuedomain.ParseMonth(month.String()); err != nil {
		return nil, err
	}

	subs, err := s.loadSubscriptionEntities(ctx, month)
	if err != nil {
		return nil, err
	}
	invoices, err := s.loadInvoiceEntities(ctx, month)
	if err != nil {
		return nil, err
	}

	var (
		results   []revenuedomain.MatchResult
		ambiguous int
	)

	pair := func(inv, sub *entity, tier revenuedomain.MatchTier, tie bool) {
		if tie {
			ambiguous++
			s.log.Warn("ambiguous match resolved by stable order",
				zap.String("month", month.String()),
				zap.String("tier", tier.String()),
				zap.String("invoice_entity", inv.key),
				zap.String("subscription_id", sub.subscriptionID),
			)
		}
		results = append(results, revenuedomain.MatchResult{
			Month:    month,
			Category: classify(inv, sub),
			Tier:     tier,

			SubscriptionID:       sub.subscriptionID,
			SubscriptionCustomer: sub.customerName,
			InvoiceCustomer:      inv.customerName,

			VesselName: firstNonEmpty(sub.vesselName, inv.vesselName),
			CallSign:   firstNonEmpty(sub.callSign, inv.callSign),

			SubscriptionMRR: sub.mrr,
			InvoiceMRR:      inv.mrr,
			Ambiguous:       tie,
		})
	}

	tiers := []struct {
		tier   revenuedomain.MatchTier
		invKey func(*entity) string
		subKey func(*entity) string
	}{
		{
			tier:   revenuedomain.TierSubscriptionRef,
			invKey: func(e *entity) string { return e.subscriptionRef },
			subKey: func(e *entity) string { return e.subscriptionID },
		},
		{
			tier:   revenuedomain.TierCallSign,
			invKey: func(e *entity) string { return normalizeKey(e.callSign) },
			subKey: func(e *entity) string { return normalizeKey(e.callSign) },
		},
		{
			tier:   revenuedomain.TierVesselCustomer,
			invKey: func(e *entity) string { return compositeKey(e.vesselName, e.customerName) },
			subKey: func(e *entity) string { return compositeKey(e.vesselName, e.customerName) },
		},
	}

	for _, t := range tiers {
		pool := indexByKey(subs, t.subKey)
		remainingInv := invoices[:0:0]
		for _, inv := range invoices {
			key := t.invKey(inv)
			candidates := pool[key]
			if key == "" || len(candidates) == 0 {
				remainingInv = append(remainingInv, inv)
				continue
			}
			sub := candidates[0]
			pair(inv, sub, t.tier, len(candidates) > 1)
			pool[key] = candidates[1:]
			subs = remove(subs, sub)
		}
		invoices = remainingInv
	}

	for _, sub := range subs {
		if sub.mrr == 0 {
			continue
		}
		results = append(results, revenuedomain.MatchResult{
			Month:                month,
			Category:             revenuedomain.MatchNoInvoice,
			SubscriptionID:       sub.subscriptionID,
			SubscriptionCustomer: sub.customerName,
			VesselName:           sub.vesselName,
			CallSign:             sub.callSign,
			SubscriptionMRR:      sub.mrr,
		})
	}
	for _, inv := range invoices {
		if inv.mrr == 0 {
			continue
		}
		results = append(results, revenuedomain.MatchResult{
			Month:           month,
			Category:        revenuedomain.MatchNoSubscription,
			InvoiceCustomer: inv.customerName,
			VesselName:      inv.vesselName,
			CallSign:        inv.callSign,
			InvoiceMRR:      inv.mrr,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.SubscriptionID != b.SubscriptionID {
			return a.SubscriptionID < b.SubscriptionID
		}
		return a.InvoiceCustomer < b.InvoiceCustomer
	})

	s.metrics.RecordReconcile(ctx, ambiguous)
	s.log.Info("month reconciled",
		zap.String("month", month.String()),
		zap.Int("results", len(results)),
		zap.Int("ambiguous", ambiguous),
	)
	return results, nil
}

// classify grades a matched pair. Differing customer identifiers mean the
// asset changed owner between the two sides; differing display names for the
// same customer are a data-quality follow-up, still matched for totals.
func classify(inv, sub *entity) revenuedomain.MatchCategory {
	if inv.customerID != "" && sub.customerID != "" && inv.customerID != sub.customerID {
		return revenuedomain.MatchOwnershipChange
	}
	if normalizeKey(inv.customerName) != normalizeKey(sub.customerName) {
		return revenuedomain.MatchNameMismatch
	}
	return revenuedomain.MatchExact
}

func (s *Service) loadSubscriptionEntities(ctx context.Context, month revenuedomain.Month) ([]*entity, error) {
	records, err := s.activeRecords(ctx, revenuedomain.StreamSubscription, month)
	if err != nil {
		return nil, err
	}

	entities := make([]*entity, 0, len(records))
	for i := range records {
		rec := &records[i]
		entities = append(entities, &entity{
			key:            rec.TransactionID,
			subscriptionID: rec.TransactionID,
			customerID:     rec.CustomerID,
			customerName:   rec.CustomerName,
			vesselName:     rec.VesselName,
			callSign:       rec.CallSign,
			mrr:            rec.MonthlyRate,
		})
	}
	sortEntities(entities)
	return entities, nil
}

// loadInvoiceEntities aggregates the month's invoice-stream records into one
// entity per commercial relationship: grouped by explicit subscription
// reference when present, else call-sign, else (vessel, customer), else
// customer alone.
func (s *Service) loadInvoiceEntities(ctx context.Context, month revenuedomain.Month) ([]*entity, error) {
	records, err := s.activeRecords(ctx, revenuedomain.StreamInvoice, month)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*entity)
	for i := range records {
		rec := &records[i]
		key := invoiceEntityKey(rec)
		e, ok := byKey[key]
		if !ok {
			e = &entity{
				key:             key,
				subscriptionRef: rec.SubscriptionRef,
				customerID:      rec.CustomerID,
				customerName:    rec.CustomerName,
				vesselName:      rec.VesselName,
				callSign:        rec.CallSign,
			}
			byKey[key] = e
		}
		e.mrr += rec.MonthlyRate
	}

	entities := make([]*entity, 0, len(byKey))
	for _, e := range byKey {
		entities = append(entities, e)
	}
	sortEntities(entities)
	return entities, nil
}

func (s *Service) activeRecords(ctx context.Context, stream revenuedomain.Stream, month revenuedomain.Month) ([]revenuedomain.RevenueRecord, error) {
	monthEnd := month.End()
	q := s.db.WithContext(ctx).
		Where("stream = ?", stream).
		Where("recurring = ?", true).
		Where("period_start IS NOT NULL AND period_start <= ?", monthEnd).
		Where("(period_end IS NULL OR period_end >= ?)", monthEnd)
	if stream == revenuedomain.StreamSubscription {
		q = q.Where("status IN ?", []revenuedomain.SubscriptionStatus{
			revenuedomain.SubscriptionStatusLive,
			revenuedomain.SubscriptionStatusNonRenewing,
		})
	}

	var records []revenuedomain.RevenueRecord
	if err := q.Order("customer_name ASC, transaction_id ASC, id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func invoiceEntityKey(rec *revenuedomain.RevenueRecord) string {
	if rec.SubscriptionRef != "" {
		return "ref:" + rec.SubscriptionRef
	}
	if cs := normalizeKey(rec.CallSign); cs != "" {
		return "cs:" + cs
	}
	if rec.VesselName != "" {
		return "vc:" + compositeKey(rec.VesselName, rec.CustomerName)
	}
	return "cust:" + rec.CustomerID
}

func sortEntities(entities []*entity) {
	sort.Slice(entities, func(i, j int) bool { return entities[i].key < entities[j].key })
}

func indexByKey(entities []*entity, keyFn func(*entity) string) map[string][]*entity {
	index := make(map[string][]*entity)
	for _, e := range entities {
		key := keyFn(e)
		if key == "" {
			continue
		}
		index[key] = append(index[key], e)
	}
	return index
}

func remove(entities []*entity, target *entity) []*entity {
	out := entities[:0:0]
	for _, e := range entities {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

// normalizeKey case-folds and strips all whitespace for secondary-key equality.
func normalizeKey(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

func compositeKey(vessel, customer string) string {
	if vessel == "" {
		return ""
	}
	return normalizeKey(vessel) + "|" + normalizeKey(customer)
}

func firstNonEmpty(values ...string) string {
	if values[0] != "" {
		return values[0]
	}
	return values[1]
}
