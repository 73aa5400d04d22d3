package period

import (
	"time"

	"github.com/fjordmetrics/revrec/internal/revenue/domain"
)

// Linker binds credit rows to the charge they reverse. A single pass over the
// batch is not enough because a credit may reference a charge that appears
// later in arbitrary row order, so charges are resolved first and credits
// read from the materialized map.
type Linker struct {
	resolver *Resolver

	chargeEnd map[string]time.Time
}

func NewLinker(resolver *Resolver) *Linker {
	return &Linker{
		resolver:  resolver,
		chargeEnd: make(map[string]time.Time),
	}
}

// LinkedResolution pairs a Resolution with the credit-linkage outcome.
type LinkedResolution struct {
	Resolution

	// LinkedChargeID is the transaction id of the charge the credit was
	// bound to, empty when linkage failed or the row is not a credit.
	LinkedChargeID string

	// Unlinked marks a credit that fell back to standard resolution
	// because its referenced charge was not found in the batch.
	Unlinked bool
}

// ResolveCharges runs the first pass: resolve every non-credit row and record
// each charge's end date under its transaction id. Must complete before any
// call to ResolveCredit.
func (l *Linker) ResolveCharges(rows []domain.SourceRow) map[string]LinkedResolution {
	out := make(map[string]LinkedResolution, len(rows))
	for _, row := range rows {
		if row.TransactionType == domain.TransactionCreditNote {
			continue
		}
		res := l.resolver.Resolve(row)
		out[rowKey(row)] = LinkedResolution{Resolution: res}
		if res.End != nil && row.TransactionID != "" {
			l.chargeEnd[row.TransactionID] = *res.End
		}
	}
	return out
}

// ResolveCredit runs the second pass for one credit row. When the referenced
// charge was seen in pass one, the credit's interval runs from its own
// transaction date to the charge's end date, so the reversal is spread over
// exactly the months the charge still covered. Otherwise the credit resolves
// like a fresh charge and is flagged for audit.
func (l *Linker) ResolveCredit(row domain.SourceRow) LinkedResolution {
	if row.ReferencedChargeID != "" && row.TransactionDate != nil {
		if end, ok := l.chargeEnd[row.ReferencedChargeID]; ok {
			start := DateOnly(*row.TransactionDate)
			if !end.Before(start) {
				return LinkedResolution{
					Resolution: Resolution{
						Start:  &start,
						End:    &end,
						Months: MonthsBetween(start, end),
						Source: domain.PeriodFromLink,
					},
					LinkedChargeID: row.ReferencedChargeID,
				}
			}
		}
	}

	return LinkedResolution{
		Resolution: l.resolver.Resolve(row),
		Unlinked:   true,
	}
}

func rowKey(row domain.SourceRow) string {
	if row.ItemID != "" {
		return row.TransactionID + "/" + row.ItemID
	}
	return row.TransactionID
}
