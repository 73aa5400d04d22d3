package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonthlyRate(t *testing.T) {
	n := New(0.25)

	assert.InDelta(t, 792.0, n.MonthlyRate(11880, 12), 0.001)
	assert.InDelta(t, 100.0, n.MonthlyRate(125, 1), 0.001)
	// Zero or broken declared periods never divide by zero.
	assert.InDelta(t, 100.0, n.MonthlyRate(125, 0), 0.001)
}

func TestCreditMonthlyRate(t *testing.T) {
	n := New(0.25)

	start := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC)

	// Ten remaining months of a twelve month charge.
	got := n.CreditMonthlyRate(-11880, start, end)
	assert.InDelta(t, -950.40, got, 0.001)

	// Sign is forced negative even when the source amount came in positive.
	assert.InDelta(t, -950.40, n.CreditMonthlyRate(11880, start, end), 0.001)
}

func TestChargeAndCreditNetToZero(t *testing.T) {
	n := New(0.25)

	chargeStart := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	chargeEnd := time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC)
	creditStart := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

	chargeRate := n.MonthlyRate(11880, 12)
	creditRate := n.CreditMonthlyRate(-11880, creditStart, chargeEnd)

	var total float64
	for m := chargeStart; !m.After(chargeEnd); m = m.AddDate(0, 1, 0) {
		total += chargeRate
		if !m.Before(creditStart) {
			total += creditRate
		}
	}
	assert.InDelta(t, 0.0, total, 0.01)
}
