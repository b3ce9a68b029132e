// Package dimension defines warehouse dimension rows and the per-dimension
// change policies that decide between overwrite and versioned history.
package dimension

import "time"

// Strategy selects how a dimension absorbs attribute changes.
type Strategy string

const (
	// SCD1 overwrites attributes in place. One row per natural key.
	SCD1 Strategy = "SCD1"
	// SCD2 closes the current version and opens a new one when a tracked
	// attribute changes.
	SCD2 Strategy = "SCD2"
)

// EndOfTime is the end_date of every open SCD2 version.
var EndOfTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// Row is a dimension row before it is assigned a surrogate key.
type Row interface {
	NaturalKey() int64
}

// Version is a stored dimension row. For SCD1 dimensions EffectiveDate and
// EndDate are zero and IsCurrent is always true.
type Version[R Row] struct {
	Key           int64
	Row           R
	EffectiveDate time.Time
	EndDate       time.Time
	IsCurrent     bool
}

// Policy is the change policy of one dimension.
// Changed compares only the tracked attribute subset; it is required for SCD2.
type Policy[R Row] struct {
	Table    string
	Entity   string
	Strategy Strategy
	Changed  func(current, incoming R) bool
}

// RunDate truncates t to the calendar day used for effective and end dates.
func RunDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
