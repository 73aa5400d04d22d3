package domain

import (
	"errors"
	"fmt"
	"time"
)

// Month is a calendar month in "YYYY-MM" form. It is the engine's partition
// key: imports, snapshots and reconciliation runs are all scoped to one Month.
type Month string

var ErrInvalidMonth = errors.New("invalid_month")

func ParseMonth(raw string) (Month, error) {
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, raw)
	}
	return MonthOf(t), nil
}

func MonthOf(t time.Time) Month {
	return Month(t.UTC().Format("2006-01"))
}

func (m Month) String() string { return string(m) }

func (m Month) time() time.Time {
	t, err := time.Parse("2006-01", string(m))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Start is the first instant of the month (UTC).
func (m Month) Start() time.Time {
	t := m.time()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// End is the month's closing instant at day granularity: midnight UTC on the
// last calendar day. Validity intervals are stored date-only, so snapshot
// containment compares against this value, and an interval ending on the last
// day of the month still covers it.
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, -1)
}

func (m Month) AddMonths(n int) Month {
	return MonthOf(m.Start().AddDate(0, n, 0))
}

func (m Month) Before(other Month) bool {
	return string(m) < string(other)
}
