package load

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/carewh-lab/carewh/internal/core/dimension"
	etlerr "github.com/carewh-lab/carewh/internal/core/errors"
	"github.com/carewh-lab/carewh/internal/core/fact"
	"github.com/carewh-lab/carewh/internal/core/source"
	"github.com/carewh-lab/carewh/internal/core/storage"
)

func (l *Loader) LoadDiagnosisBridge(ctx context.Context) (Result, error) {
	return run(ctx, l.warehouse, incremental[source.EncounterDiagnosis]{
		unit:   UnitBridgeDiagnosis,
		sel:    l.source.EncounterDiagnoses,
		change: func(d source.EncounterDiagnosis) source.Change { return d.Change },
		apply: func(ctx context.Context, tx storage.Tx, d source.EncounterDiagnosis) (Outcome, error) {
			encounterKey, err := factKey(ctx, tx, "encounter_diagnosis", d.EncounterDiagnosisID, d.EncounterID)
			if err != nil {
				return OutcomeSkipped, err
			}
			diagnosis, ok, err := tx.Diagnoses().Current(ctx, d.DiagnosisID)
			if err != nil {
				return OutcomeSkipped, fmt.Errorf("resolve diagnosis %d: %w", d.DiagnosisID, err)
			}
			if !ok {
				return OutcomeSkipped, etlerr.Dependency("encounter_diagnosis", d.EncounterDiagnosisID,
					fmt.Sprintf("diagnosis_id %d has no row in %s", d.DiagnosisID, dimension.DiagnosisPolicy.Table))
			}

			created, err := tx.Bridges().InsertDiagnosis(ctx, fact.DiagnosisBridge{
				EncounterKey: encounterKey,
				DiagnosisKey: diagnosis.Key,
				Sequence:     d.Sequence,
			})
			return bridgeOutcome(created, err, "diagnosis", encounterKey, diagnosis.Key)
		},
	})
}

func (l *Loader) LoadProcedureBridge(ctx context.Context) (Result, error) {
	return run(ctx, l.warehouse, incremental[source.EncounterProcedure]{
		unit:   UnitBridgeProcedure,
		sel:    l.source.EncounterProcedures,
		change: func(p source.EncounterProcedure) source.Change { return p.Change },
		apply: func(ctx context.Context, tx storage.Tx, p source.EncounterProcedure) (Outcome, error) {
			encounterKey, err := factKey(ctx, tx, "encounter_procedure", p.EncounterProcedureID, p.EncounterID)
			if err != nil {
				return OutcomeSkipped, err
			}
			procedure, ok, err := tx.Procedures().Current(ctx, p.ProcedureID)
			if err != nil {
				return OutcomeSkipped, fmt.Errorf("resolve procedure %d: %w", p.ProcedureID, err)
			}
			if !ok {
				return OutcomeSkipped, etlerr.Dependency("encounter_procedure", p.EncounterProcedureID,
					fmt.Sprintf("procedure_id %d has no row in %s", p.ProcedureID, dimension.ProcedurePolicy.Table))
			}

			created, err := tx.Bridges().InsertProcedure(ctx, fact.ProcedureBridge{
				EncounterKey:  encounterKey,
				ProcedureKey:  procedure.Key,
				ProcedureDate: p.ProcedureDate,
			})
			return bridgeOutcome(created, err, "procedure", encounterKey, procedure.Key)
		},
	})
}

func factKey(ctx context.Context, tx storage.Tx, entity string, linkID, encounterID int64) (int64, error) {
	key, ok, err := tx.Facts().Key(ctx, encounterID)
	if err != nil {
		return 0, fmt.Errorf("resolve encounter %d: %w", encounterID, err)
	}
	if !ok {
		return 0, etlerr.Dependency(entity, linkID,
			fmt.Sprintf("encounter_id %d has no row in fact_encounters", encounterID))
	}
	return key, nil
}

// bridgeOutcome treats a duplicate pair as already loaded.
func bridgeOutcome(created bool, err error, kind string, encounterKey, dimKey int64) (Outcome, error) {
	switch {
	case errors.Is(err, etlerr.ErrConstraint):
		slog.Debug("[Loader] Bridge pair already present",
			"bridge", kind,
			"encounter_key", encounterKey,
			"dimension_key", dimKey)
		return OutcomeSkipped, nil
	case err != nil:
		return OutcomeSkipped, fmt.Errorf("insert %s bridge (%d, %d): %w", kind, encounterKey, dimKey, err)
	case created:
		return OutcomeInserted, nil
	default:
		return OutcomeSkipped, nil
	}
}
