package load

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/carewh-lab/carewh/internal/core/source"
	"github.com/carewh-lab/carewh/internal/core/storage"
	"github.com/carewh-lab/carewh/internal/core/watermark"
)

// Outcome is what applying one candidate did to the warehouse.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeInserted
	OutcomeUpdated
)

// incremental describes a watermark-bounded stage over candidates of type T.
type incremental[T any] struct {
	unit   string
	sel    func(ctx context.Context, since time.Time) iter.Seq2[T, error]
	change func(T) source.Change
	apply  func(ctx context.Context, tx storage.Tx, rec T) (Outcome, error)
}

// run applies every candidate changed since the unit's watermark and stores
// the new watermark in the same transaction. The new watermark is the newest
// change timestamp applied, so a failed or empty stage leaves it in place.
func run[T any](ctx context.Context, wh storage.Warehouse, s incremental[T]) (Result, error) {
	start := time.Now()
	var res Result

	err := wh.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		res = Result{Unit: s.unit}

		wm, err := tx.Watermarks().Get(ctx, s.unit)
		if err != nil {
			return fmt.Errorf("read watermark: %w", err)
		}

		hw := watermark.NewHighWater(wm.LastLoad)
		for rec, err := range s.sel(ctx, wm.LastLoad) {
			if err != nil {
				return fmt.Errorf("select changes since %s: %w", wm.LastLoad.Format(time.RFC3339), err)
			}
			res.Selected++

			o, err := s.apply(ctx, tx, rec)
			if err != nil {
				return err
			}
			switch o {
			case OutcomeInserted:
				res.Inserted++
			case OutcomeUpdated:
				res.Updated++
			default:
				res.Skipped++
			}
			hw.Observe(s.change(rec).ChangedAt())
		}

		next := wm.Advance(hw.Value(), res.Selected)
		if err := tx.Watermarks().Set(ctx, next); err != nil {
			return fmt.Errorf("write watermark: %w", err)
		}
		res.Watermark = next
		return nil
	})
	if err != nil {
		return Result{Unit: s.unit}, fmt.Errorf("%s: %w", s.unit, err)
	}

	slog.Debug("[Loader] Stage applied",
		"unit", res.Unit,
		"selected", res.Selected,
		"inserted", res.Inserted,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"watermark", res.Watermark.LastLoad,
		"duration", time.Since(start))
	return res, nil
}
