package domain

// MatchTier is the priority level that produced a match. First successful
// tier wins; there is no fallthrough once an entity is claimed.
type MatchTier int

const (
	TierNone MatchTier = iota
	TierSubscriptionRef
	TierCallSign
	TierVesselCustomer
)

func (t MatchTier) String() string {
	switch t {
	case TierSubscriptionRef:
		return "subscription_ref"
	case TierCallSign:
		return "call_sign"
	case TierVesselCustomer:
		return "vessel_customer"
	default:
		return "none"
	}
}

// MatchCategory classifies a pairing (or explicit non-pairing) for the gap report.
type MatchCategory string

const (
	MatchExact           MatchCategory = "exact"
	MatchNameMismatch    MatchCategory = "name-mismatch"
	MatchNoInvoice       MatchCategory = "unmatched-no-invoice"
	MatchNoSubscription  MatchCategory = "unmatched-no-subscription"
	MatchOwnershipChange MatchCategory = "ownership-change"
)

// MatchResult is one entry of the reconciler's partition: a matched pair or
// an explicitly unmatched entity on either side.
type MatchResult struct {
	Month    Month         `json:"month"`
	Category MatchCategory `json:"category"`
	Tier     MatchTier     `json:"tier"`

	SubscriptionID       string `json:"subscription_id,omitempty"`
	SubscriptionCustomer string `json:"subscription_customer,omitempty"`
	InvoiceCustomer      string `json:"invoice_customer,omitempty"`

	VesselName string `json:"vessel_name,omitempty"`
	CallSign   string `json:"call_sign,omitempty"`

	SubscriptionMRR float64 `json:"subscription_mrr"`
	InvoiceMRR      float64 `json:"invoice_mrr"`

	// Ambiguous marks a tier tie resolved by stable order; logged, never dropped.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// Matched reports whether this result pairs both streams.
func (m MatchResult) Matched() bool {
	switch m.Category {
	case MatchNoInvoice, MatchNoSubscription:
		return false
	default:
		return true
	}
}

// GapCategory is one category's complete contribution to the month gap.
// Entities are never truncated or sampled.
type GapCategory struct {
	Category MatchCategory `json:"category"`
	Count    int           `json:"count"`
	MRR      float64       `json:"mrr"`
	Entities []MatchResult `json:"entities"`
}

// GapReport compares the two streams' MRR for one month with a complete,
// categorized breakdown of every discrepancy.
type GapReport struct {
	Month Month `json:"month"`

	SubscriptionMRR float64 `json:"subscription_mrr"`
	InvoiceMRR      float64 `json:"invoice_mrr"`
	ChargeMRR       float64 `json:"charge_mrr"`
	CreditMRR       float64 `json:"credit_mrr"`

	Gap    float64 `json:"gap"`
	GapPct float64 `json:"gap_pct"`

	MatchedCount int           `json:"matched_count"`
	Categories   []GapCategory `json:"categories"`
}
