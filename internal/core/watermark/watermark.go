package watermark

import "time"

// Kind records whether a stage ran from the epoch watermark or incrementally.
type Kind string

const (
	KindFull        Kind = "FULL"
	KindIncremental Kind = "INCREMENTAL"
)

// Epoch is the watermark of a load unit that has never committed.
// Selecting from it returns every source row.
var Epoch = time.Unix(0, 0).UTC()

// Watermark is the last committed load point of one load unit.
type Watermark struct {
	LoadUnit      string    `json:"load_unit" yaml:"load_unit"`
	LastLoad      time.Time `json:"last_load_timestamp" yaml:"last_load_timestamp"`
	RowsProcessed int64     `json:"rows_processed" yaml:"rows_processed"`
	Kind          Kind      `json:"load_kind" yaml:"load_kind"`
}

// Initial returns the epoch watermark for unit.
func Initial(unit string) Watermark {
	return Watermark{LoadUnit: unit, LastLoad: Epoch, Kind: KindFull}
}

// IsEpoch reports whether w selects every source row.
func (w Watermark) IsEpoch() bool {
	return !w.LastLoad.After(Epoch)
}

// Advance returns the watermark to store after a stage applied rows candidates
// whose newest change timestamp was highWater.
// The timestamp never moves backwards.
func (w Watermark) Advance(highWater time.Time, rows int64) Watermark {
	next := Watermark{
		LoadUnit:      w.LoadUnit,
		LastLoad:      w.LastLoad,
		RowsProcessed: rows,
		Kind:          KindIncremental,
	}
	if w.IsEpoch() {
		next.Kind = KindFull
	}
	if highWater.After(next.LastLoad) {
		next.LastLoad = highWater.UTC()
	}
	return next
}

// HighWater tracks the newest change timestamp seen during a stage.
type HighWater struct {
	max time.Time
}

// NewHighWater starts tracking from the stage's current watermark.
func NewHighWater(from time.Time) *HighWater {
	return &HighWater{max: from}
}

// Observe records a candidate's change timestamp.
func (h *HighWater) Observe(t time.Time) {
	if t.After(h.max) {
		h.max = t
	}
}

// Value returns the newest timestamp observed.
func (h *HighWater) Value() time.Time {
	return h.max
}
