// Package domain contains the normalized revenue models shared by the
// import, snapshot, reconciliation and gap services.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Stream identifies which of the two independent sources a record came from.
type Stream string

const (
	StreamSubscription Stream = "subscription"
	StreamInvoice      Stream = "invoice"
)

// TransactionType distinguishes charges from credit notes on the invoice stream.
type TransactionType string

const (
	TransactionInvoice    TransactionType = "invoice"
	TransactionCreditNote TransactionType = "creditnote"
)

// SubscriptionStatus mirrors the billing provider's lifecycle states.
type SubscriptionStatus string

const (
	SubscriptionStatusLive        SubscriptionStatus = "live"
	SubscriptionStatusNonRenewing SubscriptionStatus = "non_renewing"
	SubscriptionStatusCancelled   SubscriptionStatus = "cancelled"
	SubscriptionStatusOther       SubscriptionStatus = "other"
)

// CountsTowardMRR reports whether a subscription in this status contributes
// to the month snapshot.
func (s SubscriptionStatus) CountsTowardMRR() bool {
	return s == SubscriptionStatusLive || s == SubscriptionStatusNonRenewing
}

// PeriodSource records which resolution path produced a record's interval.
type PeriodSource string

const (
	PeriodFromConfig      PeriodSource = "config"
	PeriodFromDescription PeriodSource = "description"
	PeriodFromName        PeriodSource = "name"
	PeriodFromLink        PeriodSource = "link"
	PeriodUnresolved      PeriodSource = "unresolved"
)

// RevenueRecord is the normalized form every revenue-bearing row is reduced
// to. Records are partitioned by (SourceMonth, Stream); a re-import of a
// month deletes the partition and rebuilds it.
type RevenueRecord struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	Stream Stream       `gorm:"type:text;not null;index:idx_records_month_stream,priority:2"`

	SourceMonth Month `gorm:"type:text;not null;index:idx_records_month_stream,priority:1"`

	TransactionType   TransactionType `gorm:"type:text;not null;index"`
	TransactionID     string          `gorm:"type:text;index"`
	TransactionNumber string          `gorm:"type:text"`
	ItemID            string          `gorm:"type:text"`

	CustomerID   string `gorm:"type:text;index"`
	CustomerName string `gorm:"type:text;not null;index"`

	ProductName string `gorm:"type:text"`
	Description string `gorm:"type:text"`
	Category    string `gorm:"type:text"`
	Recurring   bool   `gorm:"not null"`

	VesselName string `gorm:"type:text;index"`
	CallSign   string `gorm:"type:text;index"`

	// SubscriptionRef is the invoice side's explicit subscription reference;
	// frequently empty in practice.
	SubscriptionRef string `gorm:"type:text;index"`

	Status SubscriptionStatus `gorm:"type:text"`

	// GrossAmount is the signed tax-inclusive amount; credits are negative.
	GrossAmount float64 `gorm:"not null"`
	NetAmount   float64 `gorm:"not null"`

	TransactionDate *time.Time `gorm:""`

	// ReferencedChargeID is the raw reference a credit carries to the charge
	// it reverses. LinkedChargeID is set only when the linker resolved it.
	ReferencedChargeID string `gorm:"type:text;index"`
	LinkedChargeID     string `gorm:"type:text"`
	Unlinked           bool   `gorm:"not null;default:false"`

	// Resolved validity interval; both nil when unresolved. Unresolved
	// records are excluded from aggregation, never defaulted.
	PeriodStart  *time.Time   `gorm:"index"`
	PeriodEnd    *time.Time   `gorm:"index"`
	PeriodMonths int          `gorm:"not null;default:0"`
	PeriodSource PeriodSource `gorm:"type:text;not null;default:'unresolved'"`

	// MonthlyRate is the signed normalized monthly amount (tax-exclusive).
	MonthlyRate float64 `gorm:"not null;index"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (RevenueRecord) TableName() string { return "revenue_records" }

// Resolved reports whether the record carries a usable validity interval.
// Invoice-stream records always have both bounds when resolved; open-ended
// subscription records have only the start.
func (r *RevenueRecord) Resolved() bool {
	return r.PeriodStart != nil
}

// ActiveAt implements the point-in-time containment rule used by snapshots.
// A nil PeriodEnd means open-ended, which only subscription records carry.
func (r *RevenueRecord) ActiveAt(instant time.Time) bool {
	if r.PeriodStart == nil || r.PeriodStart.After(instant) {
		return false
	}
	return r.PeriodEnd == nil || !r.PeriodEnd.Before(instant)
}

// MonthlySnapshot is an immutable (stream, month) aggregation. Recomputing a
// month replaces the whole row, never patches it.
type MonthlySnapshot struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	Stream Stream       `gorm:"type:text;not null;uniqueIndex:ux_snapshots_stream_month,priority:1"`
	Month  Month        `gorm:"type:text;not null;uniqueIndex:ux_snapshots_stream_month,priority:2"`

	TotalMRR      float64 `gorm:"not null"`
	ARR           float64 `gorm:"not null"`
	CustomerCount int     `gorm:"not null"`
	ARPU          float64 `gorm:"not null"`

	ChargeLineCount int     `gorm:"not null;default:0"`
	CreditLineCount int     `gorm:"not null;default:0"`
	ChargeMRR       float64 `gorm:"not null;default:0"`
	CreditMRR       float64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (MonthlySnapshot) TableName() string { return "monthly_snapshots" }

// CategoryTotal is the per-revenue-group breakdown for one month.
type CategoryTotal struct {
	Category  string  `json:"category"`
	Recurring bool    `json:"recurring"`
	MRR       float64 `json:"mrr"`
	Count     int     `json:"count"`
}

// MonthlyTrend is one point of the snapshot time series with deltas against
// the previous month.
type MonthlyTrend struct {
	Month          Month   `json:"month"`
	TotalMRR       float64 `json:"total_mrr"`
	ARR            float64 `json:"arr"`
	CustomerCount  int     `json:"customer_count"`
	ARPU           float64 `json:"arpu"`
	MRRChange      float64 `json:"mrr_change"`
	MRRChangePct   float64 `json:"mrr_change_pct"`
	CustomerChange int     `json:"customer_change"`
}

// ImportRun records one month's import with its summary, for audit.
type ImportRun struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	SourceMonth Month             `gorm:"type:text;not null;index"`
	Stream      Stream            `gorm:"type:text;not null"`
	Summary     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ImportRun) TableName() string { return "import_runs" }

// ImportSummary aggregates the non-fatal conditions of one import pass.
// None of these interrupt the batch; only storage failures do.
type ImportSummary struct {
	SourceMonth Month  `json:"source_month"`
	Stream      Stream `json:"stream"`

	Rows    int `json:"rows"`
	Charges int `json:"charges"`
	Credits int `json:"credits"`

	Unresolved           int `json:"unresolved"`
	UnlinkedCredits      int `json:"unlinked_credits"`
	MissingPeriodization int `json:"missing_periodization"`

	ChargeMRR       float64 `json:"charge_mrr"`
	CreditMRR       float64 `json:"credit_mrr"`
	TotalMRR        float64 `json:"total_mrr"`
	UniqueCustomers int     `json:"unique_customers"`
}
