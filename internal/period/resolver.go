package period

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fjordmetrics/revrec/internal/revenue/domain"
)

// Lookup answers periodization queries against the product reference table.
// Keys are normalized product names (lowercased, trimmed).
type Lookup interface {
	Months(productName string) (int, bool)
}

// Resolution is the outcome of resolving one row's validity interval.
// Start and End are nil when Source is PeriodUnresolved.
type Resolution struct {
	Start  *time.Time
	End    *time.Time
	Months int
	Source domain.PeriodSource
}

type Resolver struct {
	products Lookup
}

func NewResolver(products Lookup) *Resolver {
	return &Resolver{products: products}
}

// Resolve derives the validity interval for a charge row.
//
// Priority order: configured periodization for the product name (manual
// entries first, then the always-annual families), then free-text extraction
// from the description, then duration markers in the product name itself.
// Rows that survive all three are unresolved and excluded from aggregation.
func (r *Resolver) Resolve(row domain.SourceRow) Resolution {
	name := NormalizeProductName(itemName(row))

	if months, ok := r.configuredMonths(name); ok {
		start := row.TransactionDate
		if s, _, _, ok := parseDescription(row.Description); ok {
			// Keep the stated start but stretch the interval to the
			// configured period. Manual configuration wins over whatever
			// the invoice text claims.
			start = &s
		}
		if start == nil {
			return unresolved()
		}
		return anchored(*start, months, domain.PeriodFromConfig)
	}

	if start, end, months, ok := parseDescription(row.Description); ok {
		return Resolution{
			Start:  &start,
			End:    &end,
			Months: months,
			Source: domain.PeriodFromDescription,
		}
	}

	if months, ok := markerMonths(name); ok {
		if row.TransactionDate == nil {
			return unresolved()
		}
		return anchored(*row.TransactionDate, months, domain.PeriodFromName)
	}

	return unresolved()
}

func (r *Resolver) configuredMonths(normalizedName string) (int, bool) {
	if normalizedName == "" {
		return 0, false
	}
	if r.products != nil {
		if months, ok := r.products.Months(normalizedName); ok {
			return months, true
		}
	}
	if isAlwaysAnnual(normalizedName) {
		return 12, true
	}
	return 0, false
}

func anchored(start time.Time, months int, source domain.PeriodSource) Resolution {
	start = DateOnly(start)
	end := start.AddDate(0, months, -1)
	return Resolution{Start: &start, End: &end, Months: months, Source: source}
}

func unresolved() Resolution {
	return Resolution{Months: 1, Source: domain.PeriodUnresolved}
}

// NormalizeProductName folds a product name into its lookup key.
func NormalizeProductName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func itemName(row domain.SourceRow) string {
	if row.ItemName != "" {
		return row.ItemName
	}
	return row.ProductName
}

// isAlwaysAnnual reports whether the product belongs to a family that is
// invoiced annually even when the source row says otherwise. Names carrying
// a monthly marker are exempt; those really are monthly subscriptions.
func isAlwaysAnnual(normalizedName string) bool {
	if normalizedName == "" {
		return false
	}
	if strings.Contains(normalizedName, "(mnd)") || strings.Contains(normalizedName, "(månedlig)") {
		return false
	}
	if strings.Contains(normalizedName, "oppgradering") {
		return true
	}
	if strings.Contains(normalizedName, "sporingstrafikk vms gprs") {
		return true
	}
	if strings.Contains(normalizedName, "30 dager ers") ||
		strings.Contains(normalizedName, "ers 30 dager") ||
		strings.Contains(normalizedName, "ers inkl. sporing 30 dager") {
		return true
	}
	return false
}

// markerMonths reads an explicit duration marker out of the product name.
func markerMonths(normalizedName string) (int, bool) {
	switch {
	case strings.Contains(normalizedName, "(år)"), strings.Contains(normalizedName, "(årlig)"):
		return 12, true
	case strings.Contains(normalizedName, "(mnd)"), strings.Contains(normalizedName, "(månedlig)"):
		return 1, true
	}
	return 0, false
}

var (
	// "Gjelder perioden 10 Oct 2025 til 09 Nov 2025"
	rangeNamedNO = regexp.MustCompile(`(?i)(\d{1,2})\s+([\p{L}]+)\.?\s+(\d{4})\s+til\s+(\d{1,2})\s+([\p{L}]+)\.?\s+(\d{4})`)
	// "Charges for this duration (from 10-October-2025 to 9-October-2026)"
	rangeNamedEN = regexp.MustCompile(`(?i)from\s+(\d{1,2})-([\p{L}]+)-(\d{4})\s+to\s+(\d{1,2})-([\p{L}]+)-(\d{4})`)
	// "01.07.2025 - 30.06.2026"
	rangeDotted = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})\s*[-–]\s*(\d{1,2})\.(\d{1,2})\.(\d{4})`)
)

func parseDescription(description string) (start, end time.Time, months int, ok bool) {
	if description == "" {
		return time.Time{}, time.Time{}, 0, false
	}

	for _, re := range []*regexp.Regexp{rangeNamedNO, rangeNamedEN} {
		m := re.FindStringSubmatch(description)
		if m == nil {
			continue
		}
		s, okS := buildDate(m[1], m[2], m[3])
		e, okE := buildDate(m[4], m[5], m[6])
		if !okS || !okE || e.Before(s) {
			continue
		}
		return s, e, MonthsBetween(s, e), true
	}

	if m := rangeDotted.FindStringSubmatch(description); m != nil {
		s, okS := buildNumericDate(m[1], m[2], m[3])
		e, okE := buildNumericDate(m[4], m[5], m[6])
		if okS && okE && !e.Before(s) {
			return s, e, MonthsBetween(s, e), true
		}
	}

	return time.Time{}, time.Time{}, 0, false
}

// MonthsBetween counts whole months in the inclusive interval [start, end].
// A partial trailing month counts as full when the end day has reached the
// start day, so 10 Oct to 09 Nov is one month and 10 Oct to 09 Oct next
// year is twelve. Never less than one.
func MonthsBetween(start, end time.Time) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() >= start.Day() {
		months++
	}
	if months < 1 {
		return 1
	}
	return months
}

// monthNames maps English and Norwegian month names, full and abbreviated,
// to their calendar number.
var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January, "januar": time.January,
	"february": time.February, "feb": time.February, "februar": time.February,
	"march": time.March, "mar": time.March, "mars": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May, "mai": time.May,
	"june": time.June, "jun": time.June, "juni": time.June,
	"july": time.July, "jul": time.July, "juli": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October, "okt": time.October, "oktober": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December, "des": time.December, "desember": time.December,
}

func buildDate(day, monthName, year string) (time.Time, bool) {
	month, ok := monthNames[strings.ToLower(monthName)]
	if !ok {
		return time.Time{}, false
	}
	return buildNumericDate(day, strconv.Itoa(int(month)), year)
}

func buildNumericDate(day, month, year string) (time.Time, bool) {
	d, errD := strconv.Atoi(day)
	m, errM := strconv.Atoi(month)
	y, errY := strconv.Atoi(year)
	if errD != nil || errM != nil || errY != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		// Day overflowed the month, e.g. 31.02.
		return time.Time{}, false
	}
	return t, true
}

// DateOnly drops the time-of-day. Stored intervals are date-granular, so
// every bound written to a record goes through this.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
