package domain

import "time"

// SourceRow is one typed charge/credit row of an import batch, as delivered
// by the upstream reader. Parsing source files into rows is a collaborator's
// concern; the engine starts here.
type SourceRow struct {
	TransactionType   TransactionType
	TransactionID     string
	TransactionNumber string
	ItemID            string

	CustomerID   string
	CustomerName string

	ItemName    string
	ProductName string
	Description string

	VesselName      string
	CallSign        string
	SubscriptionRef string

	// ReferencedChargeID points at the charge a credit reverses; empty for
	// charges and for credits the provider exported without a reference.
	ReferencedChargeID string

	// GrossAmount is tax-inclusive and signed; credit rows are negative.
	GrossAmount     float64
	TransactionDate *time.Time
}

// SubscriptionRow is one record of the subscription-stream feed.
type SubscriptionRow struct {
	SubscriptionID string
	CustomerID     string
	CustomerName   string
	PlanName       string

	Status SubscriptionStatus

	// GrossAmount is the tax-inclusive recurring amount per interval.
	GrossAmount   float64
	IntervalCount int
	IntervalUnit  string // "months" or "years"

	VesselName string
	CallSign   string

	ActivatedAt *time.Time
	CancelledAt *time.Time
	ExpiresAt   *time.Time
}
