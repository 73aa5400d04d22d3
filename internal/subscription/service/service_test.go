package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fjordmetrics/revrec/internal/clock"
	"github.com/fjordmetrics/revrec/internal/config"
	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
	subscriptiondomain "github.com/fjordmetrics/revrec/internal/subscription/domain"
)

func testDSN(t *testing.T) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
}

func setupService(t *testing.T) (subscriptiondomain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(testDSN(t)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&revenuedomain.RevenueRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2025, time.October, 15, 12, 0, 0, 0, time.UTC)),
		GenID: node,
		Cfg:   config.Config{TaxRate: 0.25},
	})
	return svc, db
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestReplaceAll_NormalizesAndSwaps(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	summary, err := svc.ReplaceAll(ctx, []revenuedomain.SubscriptionRow{
		{
			SubscriptionID: "sub-1",
			CustomerID:     "cust-1",
			CustomerName:   "Kystfiske AS",
			PlanName:       "Sporing Basis",
			Status:         revenuedomain.SubscriptionStatusLive,
			GrossAmount:    11880,
			IntervalCount:  1,
			IntervalUnit:   "years",
			CallSign:       "LK1234",
			ActivatedAt:    datePtr(2025, time.July, 1),
		},
		{
			SubscriptionID: "sub-2",
			CustomerID:     "cust-2",
			CustomerName:   "Nordhav AS",
			Status:         revenuedomain.SubscriptionStatusCancelled,
			GrossAmount:    125,
			IntervalCount:  1,
			IntervalUnit:   "months",
			ActivatedAt:    datePtr(2025, time.January, 1),
			CancelledAt:    datePtr(2025, time.June, 30),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, 0, summary.Unresolved)
	// Only the live subscription counts: (11880/1.25)/12.
	assert.InDelta(t, 792.0, summary.TotalMRR, 0.001)
	assert.Equal(t, 1, summary.UniqueCustomers)

	var records []revenuedomain.RevenueRecord
	require.NoError(t, db.Order("customer_name").Find(&records).Error)
	require.Len(t, records, 2)

	annual := records[0]
	assert.Equal(t, revenuedomain.StreamSubscription, annual.Stream)
	assert.Equal(t, 12, annual.PeriodMonths)
	assert.InDelta(t, 792.0, annual.MonthlyRate, 0.001)
	assert.Nil(t, annual.PeriodEnd)

	// A second sync replaces the stream entirely.
	_, err = svc.ReplaceAll(ctx, []revenuedomain.SubscriptionRow{{
		SubscriptionID: "sub-3",
		CustomerID:     "cust-3",
		CustomerName:   "Vestkyst AS",
		Status:         revenuedomain.SubscriptionStatusLive,
		GrossAmount:    250,
		IntervalCount:  1,
		IntervalUnit:   "months",
		ActivatedAt:    datePtr(2025, time.October, 1),
	}})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&revenuedomain.RevenueRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReplaceAll_MissingActivationIsUnresolved(t *testing.T) {
	svc, _ := setupService(t)

	summary, err := svc.ReplaceAll(context.Background(), []revenuedomain.SubscriptionRow{{
		SubscriptionID: "sub-1",
		CustomerID:     "cust-1",
		CustomerName:   "Kystfiske AS",
		Status:         revenuedomain.SubscriptionStatusLive,
		GrossAmount:    125,
		IntervalCount:  1,
		IntervalUnit:   "months",
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Unresolved)
	assert.Zero(t, summary.TotalMRR)
}

func TestReplaceAll_ActivationTimeOfDayDropped(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	// Activated late on the month's last day, in a non-UTC zone.
	activated := time.Date(2025, time.July, 31, 23, 45, 0, 0, time.FixedZone("CEST", 2*3600))
	_, err := svc.ReplaceAll(ctx, []revenuedomain.SubscriptionRow{{
		SubscriptionID: "sub-1",
		CustomerID:     "cust-1",
		CustomerName:   "Kystfiske AS",
		Status:         revenuedomain.SubscriptionStatusLive,
		GrossAmount:    125,
		IntervalCount:  1,
		IntervalUnit:   "months",
		ActivatedAt:    &activated,
	}})
	require.NoError(t, err)

	var rec revenuedomain.RevenueRecord
	require.NoError(t, db.Where("transaction_id = ?", "sub-1").First(&rec).Error)
	require.NotNil(t, rec.PeriodStart)
	assert.Equal(t, time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC), *rec.PeriodStart)

	// Date-granular bounds keep the activation month inside the interval.
	july, _ := revenuedomain.ParseMonth("2025-07")
	count, err := svc.CountActive(ctx, july)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestListActive_MonthEndContainment(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.ReplaceAll(ctx, []revenuedomain.SubscriptionRow{
		{
			// Cancelled mid year, interval still covers June's month end.
			SubscriptionID: "sub-1",
			CustomerID:     "cust-1",
			CustomerName:   "Nordhav AS",
			Status:         revenuedomain.SubscriptionStatusNonRenewing,
			GrossAmount:    125,
			IntervalCount:  1,
			IntervalUnit:   "months",
			ActivatedAt:    datePtr(2025, time.January, 1),
			ExpiresAt:      datePtr(2025, time.June, 30),
		},
		{
			// Cancelled status never counts, interval or not.
			SubscriptionID: "sub-2",
			CustomerID:     "cust-2",
			CustomerName:   "Kystfiske AS",
			Status:         revenuedomain.SubscriptionStatusCancelled,
			GrossAmount:    125,
			IntervalCount:  1,
			IntervalUnit:   "months",
			ActivatedAt:    datePtr(2025, time.January, 1),
		},
	})
	require.NoError(t, err)

	june, _ := revenuedomain.ParseMonth("2025-06")
	july, _ := revenuedomain.ParseMonth("2025-07")

	active, err := svc.ListActive(ctx, june)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "sub-1", active[0].TransactionID)

	count, err := svc.CountActive(ctx, july)
	require.NoError(t, err)
	assert.Zero(t, count)
}
