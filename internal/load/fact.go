package load

import (
	"context"
	"fmt"

	"github.com/carewh-lab/carewh/internal/core/dimension"
	etlerr "github.com/carewh-lab/carewh/internal/core/errors"
	"github.com/carewh-lab/carewh/internal/core/fact"
	"github.com/carewh-lab/carewh/internal/core/source"
	"github.com/carewh-lab/carewh/internal/core/storage"
)

// LoadFacts upserts fact_encounters for every changed encounter.
// Keys are resolved against the dimension versions current now. An existing
// fact keeps its keys and admit date; discharge, counts and billing are
// refreshed.
func (l *Loader) LoadFacts(ctx context.Context) (Result, error) {
	return run(ctx, l.warehouse, incremental[source.Encounter]{
		unit:   UnitFacts,
		sel:    l.source.Encounters,
		change: func(e source.Encounter) source.Change { return e.Change },
		apply:  applyEncounter,
	})
}

func applyEncounter(ctx context.Context, tx storage.Tx, e source.Encounter) (Outcome, error) {
	if e.EncounterID <= 0 {
		return OutcomeSkipped, etlerr.Malformed("encounter", e.EncounterID, "encounter_id must be positive")
	}
	if e.EncounterDate.IsZero() {
		return OutcomeSkipped, etlerr.Malformed("encounter", e.EncounterID, "encounter_date is missing")
	}

	keys, err := resolveKeys(ctx, tx, e)
	if err != nil {
		return OutcomeSkipped, err
	}

	f := fact.NewEncounter(e, keys)
	if err := tx.EnsureDate(ctx, dimension.NewDate(e.EncounterDate)); err != nil {
		return OutcomeSkipped, fmt.Errorf("ensure date %d: %w", f.DateKey, err)
	}
	if e.DischargeDate.Valid {
		if err := tx.EnsureDate(ctx, dimension.NewDate(e.DischargeDate.Time)); err != nil {
			return OutcomeSkipped, fmt.Errorf("ensure date %d: %w", f.DischargeDateKey.Int64, err)
		}
	}

	_, created, err := tx.Facts().Upsert(ctx, f)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("upsert encounter %d: %w", e.EncounterID, err)
	}
	if created {
		return OutcomeInserted, nil
	}
	return OutcomeUpdated, nil
}

func resolveKeys(ctx context.Context, tx storage.Tx, e source.Encounter) (fact.Keys, error) {
	var keys fact.Keys

	patient, ok, err := tx.Patients().Current(ctx, e.PatientID)
	if err != nil {
		return keys, fmt.Errorf("resolve patient %d: %w", e.PatientID, err)
	}
	if !ok {
		return keys, missing(e, "patient_id", e.PatientID, dimension.PatientPolicy.Table)
	}
	keys.Patient = patient.Key

	provider, ok, err := tx.Providers().Current(ctx, e.ProviderID)
	if err != nil {
		return keys, fmt.Errorf("resolve provider %d: %w", e.ProviderID, err)
	}
	if !ok {
		return keys, missing(e, "provider_id", e.ProviderID, dimension.ProviderPolicy.Table)
	}
	keys.Provider = provider.Key

	department, ok, err := tx.Departments().Current(ctx, e.DepartmentID)
	if err != nil {
		return keys, fmt.Errorf("resolve department %d: %w", e.DepartmentID, err)
	}
	if !ok {
		return keys, missing(e, "department_id", e.DepartmentID, dimension.DepartmentPolicy.Table)
	}
	keys.Department = department.Key

	typeKey, ok, err := tx.EncounterTypeKey(ctx, e.EncounterType)
	if err != nil {
		return keys, fmt.Errorf("resolve encounter type %q: %w", e.EncounterType, err)
	}
	if !ok {
		return keys, missing(e, "encounter_type", e.EncounterType, "dim_encounter_type")
	}
	keys.EncounterType = typeKey

	return keys, nil
}

func missing(e source.Encounter, column string, value any, table string) error {
	return etlerr.Dependency("encounter", e.EncounterID,
		fmt.Sprintf("%s %v has no current row in %s", column, value, table))
}
