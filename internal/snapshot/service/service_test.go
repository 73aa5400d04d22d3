package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
	snapshotdomain "github.com/fjordmetrics/revrec/internal/snapshot/domain"
)

var dsnSeq atomic.Int64

// Each open gets its own database; tests that build two services must not
// share one shared-cache DSN.
func testDSN(t *testing.T) string {
	return fmt.Sprintf("file:%s_%d?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"), dsnSeq.Add(1))
}

func setupService(t *testing.T) (snapshotdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(testDSN(t)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&revenuedomain.RevenueRecord{}, &revenuedomain.MonthlySnapshot{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
	return svc, db, node
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func seedRecord(t *testing.T, db *gorm.DB, node *snowflake.Node, rec revenuedomain.RevenueRecord) {
	t.Helper()
	rec.ID = node.Generate()
	if rec.SourceMonth == "" {
		rec.SourceMonth = revenuedomain.Month("2025-07")
	}
	require.NoError(t, db.Create(&rec).Error)
}

func chargeWithCredit(t *testing.T, db *gorm.DB, node *snowflake.Node) {
	t.Helper()
	seedRecord(t, db, node, revenuedomain.RevenueRecord{
		Stream:          revenuedomain.StreamInvoice,
		TransactionType: revenuedomain.TransactionInvoice,
		TransactionID:   "inv-1",
		CustomerID:      "cust-1",
		CustomerName:    "Kystfiske AS",
		Recurring:       true,
		GrossAmount:     11880,
		PeriodStart:     datePtr(2025, time.July, 1),
		PeriodEnd:       datePtr(2026, time.June, 30),
		PeriodMonths:    12,
		PeriodSource:    revenuedomain.PeriodFromName,
		MonthlyRate:     792,
	})
	seedRecord(t, db, node, revenuedomain.RevenueRecord{
		Stream:          revenuedomain.StreamInvoice,
		TransactionType: revenuedomain.TransactionCreditNote,
		TransactionID:   "cn-1",
		CustomerID:      "cust-1",
		CustomerName:    "Kystfiske AS",
		Recurring:       true,
		GrossAmount:     -11880,
		LinkedChargeID:  "inv-1",
		PeriodStart:     datePtr(2025, time.September, 1),
		PeriodEnd:       datePtr(2026, time.June, 30),
		PeriodMonths:    10,
		PeriodSource:    revenuedomain.PeriodFromLink,
		MonthlyRate:     -950.40,
	})
}

func TestCompute_MonthEndContainment(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()
	chargeWithCredit(t, db, node)

	july, err := svc.Compute(ctx, revenuedomain.StreamInvoice, revenuedomain.Month("2025-07"))
	require.NoError(t, err)
	assert.InDelta(t, 792.0, july.TotalMRR, 0.001)
	assert.Equal(t, 1, july.CustomerCount)
	assert.Equal(t, 1, july.ChargeLineCount)
	assert.Equal(t, 0, july.CreditLineCount)

	september, err := svc.Compute(ctx, revenuedomain.StreamInvoice, revenuedomain.Month("2025-09"))
	require.NoError(t, err)
	assert.InDelta(t, -158.40, september.TotalMRR, 0.001)
	assert.Equal(t, 1, september.CreditLineCount)
	assert.InDelta(t, -950.40, september.CreditMRR, 0.001)

	// After the interval the lifetime sum has netted out.
	past, err := svc.Compute(ctx, revenuedomain.StreamInvoice, revenuedomain.Month("2026-07"))
	require.NoError(t, err)
	assert.Zero(t, past.TotalMRR)
	assert.Zero(t, past.CustomerCount)
}

func TestCompute_IdempotentReplace(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()
	chargeWithCredit(t, db, node)
	month := revenuedomain.Month("2025-07")

	first, err := svc.Compute(ctx, revenuedomain.StreamInvoice, month)
	require.NoError(t, err)
	second, err := svc.Compute(ctx, revenuedomain.StreamInvoice, month)
	require.NoError(t, err)

	assert.Equal(t, first.TotalMRR, second.TotalMRR)
	assert.Equal(t, first.CustomerCount, second.CustomerCount)

	var count int64
	require.NoError(t, db.Model(&revenuedomain.MonthlySnapshot{}).
		Where("stream = ? AND month = ?", revenuedomain.StreamInvoice, month).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCompute_RowOrderInvariant(t *testing.T) {
	ctx := context.Background()
	month := revenuedomain.Month("2025-09")

	forwardSvc, db1, node1 := setupService(t)
	chargeWithCredit(t, db1, node1)
	forward, err := forwardSvc.Compute(ctx, revenuedomain.StreamInvoice, month)
	require.NoError(t, err)

	// Same two records seeded in reverse order.
	reverseSvc, db2, node2 := setupService(t)
	seedRecord(t, db2, node2, revenuedomain.RevenueRecord{
		Stream:          revenuedomain.StreamInvoice,
		TransactionType: revenuedomain.TransactionCreditNote,
		TransactionID:   "cn-1",
		CustomerID:      "cust-1",
		CustomerName:    "Kystfiske AS",
		Recurring:       true,
		PeriodStart:     datePtr(2025, time.September, 1),
		PeriodEnd:       datePtr(2026, time.June, 30),
		MonthlyRate:     -950.40,
	})
	seedRecord(t, db2, node2, revenuedomain.RevenueRecord{
		Stream:          revenuedomain.StreamInvoice,
		TransactionType: revenuedomain.TransactionInvoice,
		TransactionID:   "inv-1",
		CustomerID:      "cust-1",
		CustomerName:    "Kystfiske AS",
		Recurring:       true,
		PeriodStart:     datePtr(2025, time.July, 1),
		PeriodEnd:       datePtr(2026, time.June, 30),
		MonthlyRate:     792,
	})
	// The two databases must be independent, not one shared-cache handle.
	var count int64
	require.NoError(t, db2.Model(&revenuedomain.RevenueRecord{}).Count(&count).Error)
	require.Equal(t, int64(2), count)

	reversed, err := reverseSvc.Compute(ctx, revenuedomain.StreamInvoice, month)
	require.NoError(t, err)

	assert.Equal(t, forward.TotalMRR, reversed.TotalMRR)
	assert.Equal(t, forward.CustomerCount, reversed.CustomerCount)
}

func TestCompute_SubscriptionStatusFilter(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()

	for _, tc := range []struct {
		id     string
		status revenuedomain.SubscriptionStatus
	}{
		{"sub-1", revenuedomain.SubscriptionStatusLive},
		{"sub-2", revenuedomain.SubscriptionStatusNonRenewing},
		{"sub-3", revenuedomain.SubscriptionStatusCancelled},
		{"sub-4", revenuedomain.SubscriptionStatusOther},
	} {
		seedRecord(t, db, node, revenuedomain.RevenueRecord{
			Stream:          revenuedomain.StreamSubscription,
			TransactionType: revenuedomain.TransactionInvoice,
			TransactionID:   tc.id,
			CustomerID:      "cust-" + tc.id,
			CustomerName:    tc.id,
			Status:          tc.status,
			Recurring:       true,
			PeriodStart:     datePtr(2025, time.January, 1),
			MonthlyRate:     100,
		})
	}

	snap, err := svc.Compute(ctx, revenuedomain.StreamSubscription, revenuedomain.Month("2025-07"))
	require.NoError(t, err)
	assert.InDelta(t, 200.0, snap.TotalMRR, 0.001)
	assert.Equal(t, 2, snap.CustomerCount)
}

func TestCompute_NonRecurringExcluded(t *testing.T) {
	svc, db, node := setupService(t)

	seedRecord(t, db, node, revenuedomain.RevenueRecord{
		Stream:          revenuedomain.StreamInvoice,
		TransactionType: revenuedomain.TransactionInvoice,
		TransactionID:   "inv-1",
		CustomerID:      "cust-1",
		CustomerName:    "Kystfiske AS",
		Category:        "installation",
		Recurring:       false,
		PeriodStart:     datePtr(2025, time.July, 1),
		PeriodEnd:       datePtr(2025, time.July, 31),
		MonthlyRate:     1000,
	})

	snap, err := svc.Compute(context.Background(), revenuedomain.StreamInvoice, revenuedomain.Month("2025-07"))
	require.NoError(t, err)
	assert.Zero(t, snap.TotalMRR)

	// But the category breakdown still shows it.
	totals, err := svc.Categories(context.Background(), revenuedomain.StreamInvoice, revenuedomain.Month("2025-07"))
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, "installation", totals[0].Category)
	assert.False(t, totals[0].Recurring)
	assert.InDelta(t, 1000.0, totals[0].MRR, 0.001)
}

func TestGet(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, revenuedomain.StreamInvoice, revenuedomain.Month("2025-07"))
	assert.ErrorIs(t, err, revenuedomain.ErrSnapshotNotFound)

	chargeWithCredit(t, db, node)
	_, err = svc.Compute(ctx, revenuedomain.StreamInvoice, revenuedomain.Month("2025-07"))
	require.NoError(t, err)

	snap, err := svc.Get(ctx, revenuedomain.StreamInvoice, revenuedomain.Month("2025-07"))
	require.NoError(t, err)
	assert.InDelta(t, 792.0, snap.TotalMRR, 0.001)
}

func TestTrends(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()
	chargeWithCredit(t, db, node)

	for _, m := range []string{"2025-07", "2025-08", "2025-09"} {
		_, err := svc.Compute(ctx, revenuedomain.StreamInvoice, revenuedomain.Month(m))
		require.NoError(t, err)
	}

	trends, err := svc.Trends(ctx, revenuedomain.StreamInvoice, 12)
	require.NoError(t, err)
	require.Len(t, trends, 3)

	assert.Equal(t, revenuedomain.Month("2025-07"), trends[0].Month)
	assert.Zero(t, trends[0].MRRChange)

	assert.Equal(t, revenuedomain.Month("2025-09"), trends[2].Month)
	assert.InDelta(t, -950.40, trends[2].MRRChange, 0.001)
	assert.InDelta(t, -120.0, trends[2].MRRChangePct, 0.01)
}
