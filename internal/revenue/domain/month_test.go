package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2025-07")
	require.NoError(t, err)
	assert.Equal(t, "2025-07", m.String())

	_, err = ParseMonth("2025-7")
	assert.ErrorIs(t, err, ErrInvalidMonth)
	_, err = ParseMonth("july 2025")
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestMonthBounds(t *testing.T) {
	m := Month("2025-02")
	assert.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), m.Start())
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), m.End())

	leap := Month("2024-02")
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), leap.End())
}

func TestMonthAddMonths(t *testing.T) {
	m := Month("2025-11")
	assert.Equal(t, Month("2026-01"), m.AddMonths(2))
	assert.Equal(t, Month("2025-08"), m.AddMonths(-3))
	assert.True(t, m.Before(Month("2025-12")))
}

func TestActiveAt(t *testing.T) {
	start := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC)

	rec := RevenueRecord{PeriodStart: &start, PeriodEnd: &end}
	assert.True(t, rec.ActiveAt(Month("2025-07").End()))
	assert.True(t, rec.ActiveAt(Month("2026-06").End()))
	assert.False(t, rec.ActiveAt(Month("2025-06").End()))
	assert.False(t, rec.ActiveAt(Month("2026-07").End()))

	// Open-ended subscription interval.
	open := RevenueRecord{PeriodStart: &start}
	assert.True(t, open.ActiveAt(Month("2030-01").End()))

	// Unresolved records never count.
	var unresolved RevenueRecord
	assert.False(t, unresolved.ActiveAt(Month("2025-07").End()))
}
