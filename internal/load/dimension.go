package load

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/carewh-lab/carewh/internal/core/dimension"
	"github.com/carewh-lab/carewh/internal/core/source"
	"github.com/carewh-lab/carewh/internal/core/storage"
)

// Apply applies one candidate row to a dimension under policy.
//
// SCD1 rows are upserted by natural key. An SCD2 row opens a version when its
// natural key has none current. When a tracked attribute differs the current
// version is closed on runDate and a successor effective runDate is opened.
func Apply[R dimension.Row](
	ctx context.Context,
	store storage.DimensionStore[R],
	policy dimension.Policy[R],
	row R,
	runDate time.Time,
) (Outcome, error) {
	if policy.Strategy == dimension.SCD1 {
		_, created, err := store.Upsert(ctx, row)
		if err != nil {
			return OutcomeSkipped, fmt.Errorf("upsert %s %d: %w", policy.Entity, row.NaturalKey(), err)
		}
		if created {
			return OutcomeInserted, nil
		}
		return OutcomeUpdated, nil
	}

	current, found, err := store.Current(ctx, row.NaturalKey())
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("read current %s %d: %w", policy.Entity, row.NaturalKey(), err)
	}
	if !found {
		if _, err := store.Insert(ctx, row, runDate); err != nil {
			return OutcomeSkipped, fmt.Errorf("insert %s %d: %w", policy.Entity, row.NaturalKey(), err)
		}
		return OutcomeInserted, nil
	}
	if !policy.Changed(current.Row, row) {
		return OutcomeSkipped, nil
	}

	if err := store.Close(ctx, current.Key, runDate); err != nil {
		return OutcomeSkipped, fmt.Errorf("close %s %d version %d: %w", policy.Entity, row.NaturalKey(), current.Key, err)
	}
	if _, err := store.Insert(ctx, row, runDate); err != nil {
		return OutcomeSkipped, fmt.Errorf("re-version %s %d: %w", policy.Entity, row.NaturalKey(), err)
	}
	return OutcomeUpdated, nil
}

// dimensionStage wires a source selector to a dimension table.
func dimensionStage[S any, R dimension.Row](
	unit string,
	policy dimension.Policy[R],
	sel func(context.Context, time.Time) iter.Seq2[S, error],
	change func(S) source.Change,
	convert func(S) (R, error),
	store func(storage.Tx) storage.DimensionStore[R],
	runDate time.Time,
) incremental[S] {
	return incremental[S]{
		unit:   unit,
		sel:    sel,
		change: change,
		apply: func(ctx context.Context, tx storage.Tx, rec S) (Outcome, error) {
			row, err := convert(rec)
			if err != nil {
				return OutcomeSkipped, err
			}
			return Apply(ctx, store(tx), policy, row, runDate)
		},
	}
}

func (l *Loader) LoadPatients(ctx context.Context) (Result, error) {
	runDate := dimension.RunDate(l.now())
	return run(ctx, l.warehouse, dimensionStage(UnitPatient, dimension.PatientPolicy,
		l.source.Patients,
		func(p source.Patient) source.Change { return p.Change },
		func(p source.Patient) (dimension.PatientRow, error) { return dimension.NewPatientRow(p, runDate) },
		storage.Tx.Patients,
		runDate,
	))
}

func (l *Loader) LoadProviders(ctx context.Context) (Result, error) {
	return run(ctx, l.warehouse, dimensionStage(UnitProvider, dimension.ProviderPolicy,
		l.source.Providers,
		func(p source.Provider) source.Change { return p.Change },
		dimension.NewProviderRow,
		storage.Tx.Providers,
		dimension.RunDate(l.now()),
	))
}

func (l *Loader) LoadDepartments(ctx context.Context) (Result, error) {
	return run(ctx, l.warehouse, dimensionStage(UnitDepartment, dimension.DepartmentPolicy,
		l.source.Departments,
		func(d source.Department) source.Change { return d.Change },
		dimension.NewDepartmentRow,
		storage.Tx.Departments,
		dimension.RunDate(l.now()),
	))
}

func (l *Loader) LoadDiagnoses(ctx context.Context) (Result, error) {
	return run(ctx, l.warehouse, dimensionStage(UnitDiagnosis, dimension.DiagnosisPolicy,
		l.source.Diagnoses,
		func(d source.Diagnosis) source.Change { return d.Change },
		dimension.NewDiagnosisRow,
		storage.Tx.Diagnoses,
		dimension.RunDate(l.now()),
	))
}

func (l *Loader) LoadProcedures(ctx context.Context) (Result, error) {
	return run(ctx, l.warehouse, dimensionStage(UnitProcedure, dimension.ProcedurePolicy,
		l.source.Procedures,
		func(p source.Procedure) source.Change { return p.Change },
		dimension.NewProcedureRow,
		storage.Tx.Procedures,
		dimension.RunDate(l.now()),
	))
}
