package domain

import "errors"

var (
	// ErrUnresolvedPeriod marks a record whose validity interval could not be
	// derived; the record is excluded from aggregation, not defaulted.
	ErrUnresolvedPeriod = errors.New("unresolved_period")

	// ErrUnlinkedCredit marks a credit whose originating charge could not be
	// found; the fallback interval applies and the record is flagged for audit.
	ErrUnlinkedCredit = errors.New("unlinked_credit")

	// ErrMissingPeriodization marks a product name absent from the
	// periodization table; surfaced as a data-quality warning since ignoring
	// it silently undercounts MRR.
	ErrMissingPeriodization = errors.New("missing_periodization_entry")

	ErrSnapshotNotFound = errors.New("snapshot_not_found")
	ErrEmptyBatch       = errors.New("empty_batch")
)
