package load

import (
	"context"
	"fmt"

	"github.com/carewh-lab/carewh/internal/core/fact"
	"github.com/carewh-lab/carewh/internal/core/source"
	"github.com/carewh-lab/carewh/internal/core/storage"
)

// ReconcileBilling patches facts that were loaded before their billing row
// arrived. A fact is patched at most once: after its measures leave the
// sentinel, later billing corrections are not applied. Billing for an
// encounter with no fact yet is skipped; the fact stage picks it up.
func (l *Loader) ReconcileBilling(ctx context.Context) (Result, error) {
	return run(ctx, l.warehouse, incremental[source.Billing]{
		unit:   UnitLateBilling,
		sel:    l.source.Billing,
		change: func(b source.Billing) source.Change { return b.Change },
		apply: func(ctx context.Context, tx storage.Tx, b source.Billing) (Outcome, error) {
			patched, err := tx.Facts().PatchBilling(ctx, b.EncounterID, fact.BillingFrom(&b))
			if err != nil {
				return OutcomeSkipped, fmt.Errorf("patch billing %d for encounter %d: %w", b.BillingID, b.EncounterID, err)
			}
			if patched {
				return OutcomeUpdated, nil
			}
			return OutcomeSkipped, nil
		},
	})
}
