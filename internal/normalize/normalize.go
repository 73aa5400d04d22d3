// Package normalize converts gross periodic amounts into tax-exclusive
// monthly rates.
package normalize

import (
	"math"
	"time"

	"github.com/fjordmetrics/revrec/internal/period"
)

type Normalizer struct {
	divisor float64
}

// New builds a Normalizer for the given tax rate, e.g. 0.25 for a gross
// amount that includes 25% VAT.
func New(taxRate float64) *Normalizer {
	return &Normalizer{divisor: 1 + taxRate}
}

// Net strips tax from a gross amount.
func (n *Normalizer) Net(gross float64) float64 {
	return gross / n.divisor
}

// MonthlyRate spreads a gross charge amount evenly over its declared period.
func (n *Normalizer) MonthlyRate(gross float64, months int) float64 {
	if months < 1 {
		months = 1
	}
	return n.Net(gross) / float64(months)
}

// CreditMonthlyRate spreads a credit over the whole months actually covered
// by its own interval, not the original charge's declared period. A credit
// landing mid-term covers fewer months than the charge did, so its monthly
// rate is larger in magnitude and the lifetime sum of charge plus credit
// nets to zero. The result is always negative.
func (n *Normalizer) CreditMonthlyRate(gross float64, start, end time.Time) float64 {
	months := period.MonthsBetween(start, end)
	return -math.Abs(n.Net(gross)) / float64(months)
}
